// Package config provides YAML configuration parsing for pendingtx.
//
// This package enables running pendingtx as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: StackStay pending bookings
//	port: 8080
//	log_level: info
//
//	backend:
//	  type: mongo
//	  mongo:
//	    uri: ${MONGO_URI}
//	    database: stackstay
//
//	tracker:
//	  url_template: "https://api.hiro.so/extended/v1/tx/{{.TxID}}"
//	  interval: 30s
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pendingtx/pending"
)

const (
	// minTrackerInterval prevents hammering the status API.
	minTrackerInterval = 1 * time.Second

	// maxTrackerInterval keeps settled bookings from lingering for hours.
	maxTrackerInterval = 1 * time.Hour

	defaultPort              = 8080
	defaultLogLevel          = "info"
	defaultMongoDatabase     = "stackstay"
	defaultMongoCollection   = "pending_slots"
	defaultMongoConnTimeout  = 10 * time.Second
	defaultTrackerStatusPath = "tx_status"
	defaultTrackerInterval   = 30 * time.Second
	defaultTrackerTimeout    = 10 * time.Second
	defaultTrackerWorkers    = 4
)

// Backend types.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Config is the root configuration structure for pendingtx.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// StorageKey is the durable slot holding the pending list.
	// Defaults to "stackstay_pending_bookings".
	StorageKey string `yaml:"storage_key"`

	// Backend selects where the list is persisted.
	Backend BackendConfig `yaml:"backend"`

	// Tracker enables removal of settled bookings. Omit to disable.
	Tracker *TrackerConfig `yaml:"tracker"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	// Type is "memory" (default) or "mongo".
	Type string `yaml:"type"`

	// Mongo configures the MongoDB backend (for type: mongo).
	Mongo MongoConfig `yaml:"mongo"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	// URI is the connection string. Supports environment variable
	// substitution: ${VAR} or ${VAR:-default}
	URI string `yaml:"uri"`

	// Database defaults to "stackstay".
	Database string `yaml:"database"`

	// Collection defaults to "pending_slots".
	Collection string `yaml:"collection"`

	// ConnectTimeout bounds the initial connection and ping. Defaults to 10s.
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// TrackerConfig configures the transaction status tracker.
type TrackerConfig struct {
	// URLTemplate is a Go template rendering the status URL of a booking.
	// {{.TxID}} is the only variable. Supports environment variable substitution.
	URLTemplate string `yaml:"url_template"`

	// StatusPath is the dot path of the status field. Defaults to "tx_status".
	StatusPath string `yaml:"status_path"`

	// PendingValues are the non-terminal statuses. Defaults to [pending].
	PendingValues []string `yaml:"pending_values"`

	// Headers are sent with every request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Interval is the time between checks, between 1s and 1h. Defaults to 30s.
	Interval Duration `yaml:"interval"`

	// Timeout is the per-request timeout, at least 1s. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// MaxConcurrency is the number of concurrent requests. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the title, storage key, MongoDB
// settings, tracker URL template and tracker headers. Defaults are applied
// before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expand substitutes environment variables.
func (c *Config) expand() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"title", &c.Title},
		{"storage_key", &c.StorageKey},
		{"backend.mongo.uri", &c.Backend.Mongo.URI},
		{"backend.mongo.database", &c.Backend.Mongo.Database},
		{"backend.mongo.collection", &c.Backend.Mongo.Collection},
	}
	if c.Tracker != nil {
		fields = append(fields, struct {
			name  string
			value *string
		}{"tracker.url_template", &c.Tracker.URLTemplate})
	}

	for _, f := range fields {
		expanded, err := expandEnvVars(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}

	if c.Tracker != nil {
		for k, v := range c.Tracker.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("tracker.headers[%s]: %w", k, err)
			}
			c.Tracker.Headers[k] = expanded
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.StorageKey == "" {
		c.StorageKey = pending.DefaultKey
	}
	if c.Backend.Type == "" {
		c.Backend.Type = BackendMemory
	}
	if c.Backend.Type == BackendMongo {
		m := &c.Backend.Mongo
		if m.Database == "" {
			m.Database = defaultMongoDatabase
		}
		if m.Collection == "" {
			m.Collection = defaultMongoCollection
		}
		if m.ConnectTimeout == 0 {
			m.ConnectTimeout = Duration(defaultMongoConnTimeout)
		}
	}
	if t := c.Tracker; t != nil {
		if t.StatusPath == "" {
			t.StatusPath = defaultTrackerStatusPath
		}
		if len(t.PendingValues) == 0 {
			t.PendingValues = []string{string(pending.StatusPending)}
		}
		if t.Interval == 0 {
			t.Interval = Duration(defaultTrackerInterval)
		}
		if t.Timeout == 0 {
			t.Timeout = Duration(defaultTrackerTimeout)
		}
		if t.MaxConcurrency == 0 {
			t.MaxConcurrency = defaultTrackerWorkers
		}
	}
}

// validate checks a config after defaults were applied.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Backend.Type {
	case BackendMemory:
	case BackendMongo:
		if err := c.Backend.Mongo.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendMemory, BackendMongo, c.Backend.Type)
	}

	if c.Tracker != nil {
		if err := c.Tracker.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (m *MongoConfig) validate() error {
	if m.URI == "" {
		return errors.New("backend.mongo.uri is required")
	}
	parsed, err := url.Parse(m.URI)
	if err != nil {
		return fmt.Errorf("backend.mongo: invalid uri: %w", err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("backend.mongo.uri scheme must be mongodb or mongodb+srv, got %q", parsed.Scheme)
	}
	if m.ConnectTimeout.Duration() < 0 {
		return fmt.Errorf("backend.mongo.connect_timeout cannot be negative, got %s", m.ConnectTimeout.Duration())
	}
	return nil
}

func (t *TrackerConfig) validate() error {
	if t.URLTemplate == "" {
		return errors.New("tracker.url_template is required")
	}

	// fail fast before the tracker tries to use an invalid template
	tmpl, err := template.New("").Option("missingkey=error").Parse(t.URLTemplate)
	if err != nil {
		return fmt.Errorf("tracker: invalid url_template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ TxID string }{TxID: "0x00"}); err != nil {
		return fmt.Errorf("tracker: invalid url_template: %w", err)
	}
	parsed, err := url.Parse(buf.String())
	if err != nil {
		return fmt.Errorf("tracker: invalid url_template: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("tracker: url_template scheme must be http or https, got %q", parsed.Scheme)
	}
	if !strings.Contains(t.URLTemplate, ".TxID") {
		return errors.New("tracker: url_template must reference {{.TxID}}")
	}

	if t.Interval.Duration() < minTrackerInterval {
		return fmt.Errorf("tracker.interval must be at least %s, got %s", minTrackerInterval, t.Interval.Duration())
	}
	if t.Interval.Duration() > maxTrackerInterval {
		return fmt.Errorf("tracker.interval must not exceed %s, got %s", maxTrackerInterval, t.Interval.Duration())
	}
	if t.Timeout.Duration() < time.Second {
		return fmt.Errorf("tracker.timeout must be at least 1s, got %s", t.Timeout.Duration())
	}
	if t.MaxConcurrency < 0 {
		return fmt.Errorf("tracker.max_concurrency cannot be negative, got %d", t.MaxConcurrency)
	}
	return nil
}

// parseLogLevel maps a configured level name to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}

// SlogLevel returns the configured log level. Parse has already validated it.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
