package ai

import (
	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client          *openai.Client
	model           string
	transcribeModel string
}

func New(apiKey, baseURL, model, transcribeModel string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}

	return &Client{
		client:          openai.NewClientWithConfig(config),
		model:           model,
		transcribeModel: transcribeModel,
	}
}
