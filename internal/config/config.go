package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"projectboard/internal/events"
)

// Config models projectboard.yml.
type Config struct {
	Timeline Timeline        `yaml:"timeline" json:"timeline"`
	Sort     Sort            `yaml:"sort" json:"sort"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type Timeline struct {
	MinWeeks           int `yaml:"min_weeks" json:"min_weeks"`
	MaxWeeks           int `yaml:"max_weeks" json:"max_weeks"`
	MarkerSpacingWeeks int `yaml:"marker_spacing_weeks" json:"marker_spacing_weeks"`
	PreviewTasks       int `yaml:"preview_tasks" json:"preview_tasks"`
}

type Sort struct {
	Locale string `yaml:"locale" json:"locale"`
}

// WebhookConfig is one outbound event subscription. An empty Events list
// subscribes to every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events"`
	Secret         string   `yaml:"secret,omitempty" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

func (w WebhookConfig) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Wants reports whether the hook subscribes to evtType.
func (w WebhookConfig) Wants(evtType string) bool {
	return len(w.Events) == 0 || slices.Contains(w.Events, evtType)
}

// maxWeeks is the width of the 12 month by 4 week grid.
const maxWeeks = 48

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	t := c.Timeline
	if t.MinWeeks < 1 {
		return fmt.Errorf("timeline.min_weeks must be at least 1")
	}
	if t.MaxWeeks < t.MinWeeks {
		return fmt.Errorf("timeline.max_weeks (%d) must be >= min_weeks (%d)", t.MaxWeeks, t.MinWeeks)
	}
	if t.MaxWeeks > maxWeeks {
		return fmt.Errorf("timeline.max_weeks must be <= %d", maxWeeks)
	}
	if t.MarkerSpacingWeeks < 1 {
		return fmt.Errorf("timeline.marker_spacing_weeks must be at least 1")
	}
	if t.PreviewTasks < 1 {
		return fmt.Errorf("timeline.preview_tasks must be at least 1")
	}
	if _, err := language.Parse(c.Sort.Locale); err != nil {
		return fmt.Errorf("sort.locale %q: %w", c.Sort.Locale, err)
	}
	known := events.Types()
	for i, h := range c.Webhooks {
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhooks[%d].url must be an absolute http(s) url", i)
		}
		for _, e := range h.Events {
			if !slices.Contains(known, e) {
				return fmt.Errorf("webhooks[%d] subscribes to unknown event %s", i, e)
			}
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Language returns the collation language for name sorting.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Sort.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "projectboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config %s not found; create one with pb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns the built-in settings.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses config from raw YAML bytes. Omitted keys keep their
// default values; the result is validated.
func FromYAML(data []byte) (*Config, error) {
	cfg := Config{
		Timeline: Timeline{MinWeeks: 12, MaxWeeks: 48, MarkerSpacingWeeks: 2, PreviewTasks: 3},
		Sort:     Sort{Locale: "en"},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `timeline:
  # shortest and longest bar drawn for a project, in weeks
  min_weeks: 12
  max_weeks: 48
  # weeks between task markers that have no due date of their own
  marker_spacing_weeks: 2
  # task rows shown on a collapsed project
  preview_tasks: 3

sort:
  locale: en

webhooks: []
# webhooks:
#   - url: https://hooks.example.com/board
#     events: [project.created, project.updated]
#     secret: change-me
#     timeout_seconds: 5
`
