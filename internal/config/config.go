// Package config provides configuration loading and validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/discount-watch/internal/fetch"
	"github.com/jonathan/discount-watch/internal/schedule"
	"github.com/jonathan/discount-watch/internal/schemas"
	"github.com/jonathan/discount-watch/internal/sources"
)

// Environment variables that override file values.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvWebhookURL  = "DISCOUNT_WATCH_WEBHOOK"
)

// Defaults
const (
	DefaultMinInterval   = 10 * time.Minute
	DefaultSourceTimeout = 2 * time.Minute
	DefaultCron          = "*/15 * * * *"
	DefaultDriver        = "sqlite"
	DefaultSQLitePath    = "discount-watch.db"
	DefaultPort          = 8080
	DefaultMaxDeals      = 10
	DefaultNotifyTimeout = 10 * time.Second
)

// Render modes
const (
	RenderHTTP    = "http"
	RenderBrowser = "browser"
)

// DriverMemory keeps the snapshot in memory only.
const DriverMemory = "memory"

// Config is the whole application configuration.
type Config struct {
	Sources    []SourceConfig   `json:"sources" validate:"required,min=1,dive"`
	Categories []CategoryConfig `json:"categories,omitempty" validate:"dive"`
	Fetch      FetchConfig      `json:"fetch"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Store      StoreConfig      `json:"store"`
	Notify     NotifyConfig     `json:"notify"`
	Server     ServerConfig     `json:"server"`
	Log        LogConfig        `json:"log"`
}

// SourceConfig describes one storefront.
type SourceConfig struct {
	ID          string            `json:"id" validate:"required,max=64"`
	Name        string            `json:"name,omitempty"`
	Kind        string            `json:"kind" validate:"required,oneof=standard labeled catalog"`
	Render      string            `json:"render,omitempty" validate:"omitempty,oneof=http browser"`
	MinInterval Duration          `json:"min_interval,omitempty" validate:"gte=0"`
	Timeout     Duration          `json:"timeout,omitempty" validate:"gte=0"`
	URLs        []URLConfig       `json:"urls" validate:"required,min=1,dive"`
	Selectors   sources.Selectors `json:"selectors"`
}

// URLConfig is one page of a source. Category pins every item on the page.
type URLConfig struct {
	URL      string `json:"url" validate:"required,url"`
	Category string `json:"category,omitempty"`
}

// CategoryConfig defines a product category and its classification keywords.
type CategoryConfig struct {
	Name     string   `json:"name" validate:"required"`
	Ordinal  int      `json:"ordinal" validate:"gte=0"`
	Keywords []string `json:"keywords,omitempty"`
}

// FetchConfig tunes the HTTP client.
type FetchConfig struct {
	Timeout    Duration          `json:"timeout,omitempty" validate:"gte=0"`
	UserAgent  string            `json:"user_agent,omitempty"`
	RetryCount int               `json:"retry_count,omitempty" validate:"gte=0,lte=10"`
	RetryWait  Duration          `json:"retry_wait,omitempty" validate:"gte=0"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// ScheduleConfig controls periodic runs.
type ScheduleConfig struct {
	Cron       string `json:"cron,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	Driver string `json:"driver,omitempty" validate:"omitempty,oneof=postgres sqlite memory"`
	DSN    string `json:"dsn,omitempty"`
}

// NotifyConfig configures admin notifications.
type NotifyConfig struct {
	WebhookURL string   `json:"webhook_url,omitempty" validate:"omitempty,url"`
	Timeout    Duration `json:"timeout,omitempty" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port     int `json:"port,omitempty" validate:"gte=0,lte=65535"`
	MaxDeals int `json:"max_deals,omitempty" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "config error: " + e.Problems[0]
	}
	return "config error:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// Load reads a JSON or YAML configuration file (chosen by extension), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes a configuration document. format is a file extension
// (".json", ".yaml", ".yml"); anything else is treated as JSON.
func Parse(data []byte, format string) (*Config, error) {
	doc, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	if err := schemas.ValidateConfig(doc); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// toJSON normalizes YAML documents to JSON so both formats share one schema
// and one decoder.
func toJSON(data []byte, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case ".yaml", ".yml":
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
		doc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert config YAML: %w", err)
		}
		return doc, nil
	default:
		if !json.Valid(data) {
			var v interface{}
			err := json.Unmarshal(data, &v)
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		return data, nil
	}
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Store.DSN = v
		if c.Store.Driver == "" {
			c.Store.Driver = "postgres"
		}
	}
	if v, ok := lookup(EnvWebhookURL); ok && v != "" {
		c.Notify.WebhookURL = v
	}
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Render == "" {
			s.Render = RenderHTTP
		}
		if s.MinInterval == 0 {
			s.MinInterval = Duration(DefaultMinInterval)
		}
		if s.Timeout == 0 {
			s.Timeout = Duration(DefaultSourceTimeout)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
	}

	defaults := fetch.DefaultOptions()
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(defaults.Timeout)
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaults.UserAgent
	}
	if c.Fetch.RetryCount == 0 {
		c.Fetch.RetryCount = defaults.RetryCount
	}
	if c.Fetch.RetryWait == 0 {
		c.Fetch.RetryWait = Duration(defaults.RetryWait)
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultDriver
	}
	if c.Store.Driver == DefaultDriver && c.Store.DSN == "" {
		c.Store.DSN = DefaultSQLitePath
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = Duration(DefaultNotifyTimeout)
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.MaxDeals == 0 {
		c.Server.MaxDeals = DefaultMaxDeals
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config error: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("'%s' failed the '%s' rule", fe.Namespace(), fe.Tag()))
		}
	}

	categories := map[string]bool{}
	ordinals := map[int]string{}
	for _, cat := range c.Categories {
		key := strings.ToUpper(cat.Name)
		if categories[key] {
			problems = append(problems, fmt.Sprintf("duplicate category %q", cat.Name))
		}
		categories[key] = true
		if other, ok := ordinals[cat.Ordinal]; ok {
			problems = append(problems, fmt.Sprintf("categories %q and %q share ordinal %d", other, cat.Name, cat.Ordinal))
		}
		ordinals[cat.Ordinal] = cat.Name
	}

	ids := map[string]bool{}
	for _, s := range c.Sources {
		if ids[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate source id %q", s.ID))
		}
		ids[s.ID] = true

		if kind, err := sources.ParseKind(s.Kind); err == nil {
			if _, err := sources.New(kind, s.Selectors); err != nil {
				problems = append(problems, fmt.Sprintf("source %q: %v", s.ID, err))
			}
		}
		for _, u := range s.URLs {
			if u.Category != "" && !categories[strings.ToUpper(u.Category)] {
				problems = append(problems, fmt.Sprintf("source %q: url %s references unknown category %q", s.ID, u.URL, u.Category))
			}
		}
	}

	if c.Schedule.Cron != "" {
		if err := schedule.ValidateSpec(c.Schedule.Cron); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Store.Driver != "" && c.Store.Driver != DriverMemory && c.Store.DSN == "" {
		problems = append(problems, fmt.Sprintf("store driver %q needs a dsn", c.Store.Driver))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
