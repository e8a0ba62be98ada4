package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/bot"
	"github.com/hray3182/nudge/internal/bot/handlers"
	"github.com/hray3182/nudge/internal/config"
	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/dispatcher"
	"github.com/hray3182/nudge/internal/logging"
	"github.com/hray3182/nudge/internal/planner"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/repository/sqlite"
	"github.com/hray3182/nudge/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("info")
		l.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open store")
	}
	defer store.Close()

	policy, err := cfg.LeadTimes()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.LeadTimesFile).Msg("failed to load lead times")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram API")
	}

	sched := scheduler.New(
		store,
		dispatcher.New(bot.NewSender(api)),
		logging.Component(log, "scheduler"),
		cfg.PollInterval,
		cfg.DueWindow,
	)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(ctx)
	}()

	deps := handlers.Deps{
		API:       api,
		Store:     store,
		Planner:   planner.New(store, policy, logging.Component(log, "planner")),
		Scheduler: sched,
		Log:       logging.Component(log, "handlers"),
	}
	// Natural language and voice input are optional
	if cfg.AIAPIKey != "" {
		client := ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITranscribeModel)
		deps.Extractor = client
		deps.Transcriber = client
		log.Info().Str("model", cfg.AIModel).Msg("AI client initialized")
	} else {
		log.Warn().Msg("AI_API_KEY not set, only /manual reminders are available")
	}

	b := bot.New(api, handlers.New(deps), logging.Component(log, "bot"))
	log.Info().Msg("starting bot")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("shutting down")
	cancel()
	<-schedDone
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.Store, error) {
	if cfg.DBDriver == config.DriverSQLite {
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logging.Component(log, "sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, logging.Component(log, "migrate")); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("connected to postgres")
	return repository.NewPostgres(db), nil
}
