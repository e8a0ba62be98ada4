package leadtime

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/hray3182/nudge/internal/models"
)

// Offset is one entry of the alert schedule: fire Before the event.
type Offset struct {
	Before   time.Duration
	Label    string
	Category string
	Main     bool
}

// Policy is the ordered list of alerts derived from a single event.
type Policy []Offset

// Default mirrors the schedule users get out of the box.
func Default() Policy {
	return Policy{
		{Before: 0, Label: "right now", Category: models.CategoryMain, Main: true},
		{Before: 72 * time.Hour, Label: "3 days before", Category: models.CategoryReminder},
		{Before: 48 * time.Hour, Label: "2 days before", Category: models.CategoryReminder},
		{Before: 24 * time.Hour, Label: "1 day before", Category: models.CategoryReminder},
		{Before: 2 * time.Hour, Label: "2 hours before", Category: models.CategoryReminder},
	}
}

// Validate checks that the policy has exactly one main alert at the event
// moment and that every other alert fires strictly earlier.
func (p Policy) Validate() error {
	if len(p) == 0 {
		return errors.New("lead-time policy is empty")
	}
	mains := 0
	for i, o := range p {
		if o.Label == "" {
			return fmt.Errorf("lead time #%d: label is required", i+1)
		}
		if o.Main {
			mains++
			if o.Before != 0 {
				return fmt.Errorf("lead time #%d: main alert must fire at the event moment", i+1)
			}
			continue
		}
		if o.Before <= 0 {
			return fmt.Errorf("lead time #%d (%s): offset must be positive", i+1, o.Label)
		}
	}
	if mains != 1 {
		return fmt.Errorf("lead-time policy needs exactly one main alert, got %d", mains)
	}
	return nil
}

type fileEntry struct {
	Before   string `yaml:"before"`
	Label    string `yaml:"label"`
	Category string `yaml:"category"`
	Main     bool   `yaml:"main"`
}

type fileDoc struct {
	LeadTimes []fileEntry `yaml:"lead_times"`
}

// Parse reads a YAML policy document:
//
//	lead_times:
//	  - {before: 0, label: right now, main: true}
//	  - {before: 1d, label: 1 day before}
func Parse(data []byte) (Policy, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	policy := make(Policy, 0, len(doc.LeadTimes))
	for i, e := range doc.LeadTimes {
		before, err := ParseDuration(e.Before)
		if err != nil {
			return nil, fmt.Errorf("lead time #%d: %w", i+1, err)
		}
		category := e.Category
		if category == "" {
			category = models.CategoryReminder
			if e.Main {
				category = models.CategoryMain
			}
		}
		policy = append(policy, Offset{Before: before, Label: e.Label, Category: category, Main: e.Main})
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// Load returns the Default policy when path is empty.
func Load(path string) (Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lead-time file: %w", err)
	}
	return Parse(data)
}
