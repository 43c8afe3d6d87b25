package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StorageKey != "stackstay_pending_bookings" {
		t.Errorf("StorageKey = %q, want stackstay_pending_bookings", cfg.StorageKey)
	}
	if cfg.Backend.Type != BackendMemory {
		t.Errorf("Backend.Type = %q, want %q", cfg.Backend.Type, BackendMemory)
	}
	if cfg.Tracker != nil {
		t.Errorf("Tracker = %+v, want nil", cfg.Tracker)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: StackStay
port: 9090
log_level: debug
storage_key: custom_slot

backend:
  type: mongo
  mongo:
    uri: mongodb://localhost:27017/?replicaSet=rs0
    database: bookings
    collection: slots
    connect_timeout: 5s

tracker:
  url_template: "https://api.hiro.so/extended/v1/tx/{{.TxID}}"
  status_path: result.tx_status
  pending_values: [pending, submitted]
  headers:
    X-Api-Key: abc
  interval: 15s
  timeout: 3s
  max_concurrency: 8
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "StackStay" {
		t.Errorf("Title = %q, want StackStay", cfg.Title)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
	if cfg.StorageKey != "custom_slot" {
		t.Errorf("StorageKey = %q, want custom_slot", cfg.StorageKey)
	}

	m := cfg.Backend.Mongo
	if cfg.Backend.Type != BackendMongo {
		t.Errorf("Backend.Type = %q, want mongo", cfg.Backend.Type)
	}
	if m.URI != "mongodb://localhost:27017/?replicaSet=rs0" {
		t.Errorf("Mongo.URI = %q", m.URI)
	}
	if m.Database != "bookings" || m.Collection != "slots" {
		t.Errorf("Mongo database/collection = %q/%q, want bookings/slots", m.Database, m.Collection)
	}
	if m.ConnectTimeout.Duration() != 5*time.Second {
		t.Errorf("Mongo.ConnectTimeout = %v, want 5s", m.ConnectTimeout.Duration())
	}

	tr := cfg.Tracker
	if tr == nil {
		t.Fatal("Tracker = nil")
	}
	if tr.StatusPath != "result.tx_status" {
		t.Errorf("StatusPath = %q, want result.tx_status", tr.StatusPath)
	}
	if len(tr.PendingValues) != 2 || tr.PendingValues[1] != "submitted" {
		t.Errorf("PendingValues = %v, want [pending submitted]", tr.PendingValues)
	}
	if tr.Headers["X-Api-Key"] != "abc" {
		t.Errorf("Headers[X-Api-Key] = %q, want abc", tr.Headers["X-Api-Key"])
	}
	if tr.Interval.Duration() != 15*time.Second {
		t.Errorf("Interval = %v, want 15s", tr.Interval.Duration())
	}
	if tr.Timeout.Duration() != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", tr.Timeout.Duration())
	}
	if tr.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", tr.MaxConcurrency)
	}
}

func TestParse_MongoDefaults(t *testing.T) {
	yaml := `
backend:
  type: mongo
  mongo:
    uri: mongodb://localhost:27017
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	m := cfg.Backend.Mongo
	if m.Database != "stackstay" {
		t.Errorf("Database = %q, want stackstay", m.Database)
	}
	if m.Collection != "pending_slots" {
		t.Errorf("Collection = %q, want pending_slots", m.Collection)
	}
	if m.ConnectTimeout.Duration() != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", m.ConnectTimeout.Duration())
	}
}

func TestParse_TrackerDefaults(t *testing.T) {
	yaml := `
tracker:
  url_template: "https://api.hiro.so/extended/v1/tx/{{.TxID}}"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tr := cfg.Tracker
	if tr.StatusPath != "tx_status" {
		t.Errorf("StatusPath = %q, want tx_status", tr.StatusPath)
	}
	if len(tr.PendingValues) != 1 || tr.PendingValues[0] != "pending" {
		t.Errorf("PendingValues = %v, want [pending]", tr.PendingValues)
	}
	if tr.Interval.Duration() != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", tr.Interval.Duration())
	}
	if tr.Timeout.Duration() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", tr.Timeout.Duration())
	}
	if tr.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", tr.MaxConcurrency)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_MONGO_HOST", "db.internal")
	t.Setenv("TEST_HIRO_KEY", "secret123")
	t.Setenv("TEST_HIRO_HOST", "api.testnet.hiro.so")

	yaml := `
backend:
  type: mongo
  mongo:
    uri: mongodb://${TEST_MONGO_HOST}:27017
tracker:
  url_template: "https://${TEST_HIRO_HOST}/extended/v1/tx/{{.TxID}}"
  headers:
    X-Api-Key: "${TEST_HIRO_KEY}"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Backend.Mongo.URI != "mongodb://db.internal:27017" {
		t.Errorf("Mongo.URI = %q, want mongodb://db.internal:27017", cfg.Backend.Mongo.URI)
	}
	if cfg.Tracker.URLTemplate != "https://api.testnet.hiro.so/extended/v1/tx/{{.TxID}}" {
		t.Errorf("URLTemplate = %q", cfg.Tracker.URLTemplate)
	}
	if cfg.Tracker.Headers["X-Api-Key"] != "secret123" {
		t.Errorf("Headers[X-Api-Key] = %q, want secret123", cfg.Tracker.Headers["X-Api-Key"])
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
storage_key: ${UNSET_VAR:-fallback_slot}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.StorageKey != "fallback_slot" {
		t.Errorf("StorageKey = %q, want fallback_slot", cfg.StorageKey)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_MONGO_URI is expected to not exist in the environment
	yaml := `
backend:
  type: mongo
  mongo:
    uri: ${MISSING_MONGO_URI}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_MONGO_URI") {
		t.Errorf("error should mention MISSING_MONGO_URI: %v", err)
	}
	if !strings.Contains(err.Error(), "backend.mongo.uri") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "port too high",
			yaml:        `port: 70000`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name:        "negative port",
			yaml:        `port: -1`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name:        "unknown log level",
			yaml:        `log_level: verbose`,
			wantErrLike: "log_level must be",
		},
		{
			name:        "unknown backend",
			yaml:        "backend:\n  type: redis",
			wantErrLike: "backend.type must be",
		},
		{
			name:        "mongo without uri",
			yaml:        "backend:\n  type: mongo",
			wantErrLike: "backend.mongo.uri is required",
		},
		{
			name:        "mongo wrong scheme",
			yaml:        "backend:\n  type: mongo\n  mongo:\n    uri: postgres://localhost",
			wantErrLike: "scheme must be mongodb",
		},
		{
			name:        "mongo negative timeout",
			yaml:        "backend:\n  type: mongo\n  mongo:\n    uri: mongodb://localhost\n    connect_timeout: -1s",
			wantErrLike: "connect_timeout cannot be negative",
		},
		{
			name:        "tracker without url",
			yaml:        "tracker:\n  interval: 10s",
			wantErrLike: "tracker.url_template is required",
		},
		{
			name:        "tracker unclosed action",
			yaml:        "tracker:\n  url_template: \"https://x/{{.TxID\"",
			wantErrLike: "invalid url_template",
		},
		{
			name:        "tracker unknown variable",
			yaml:        "tracker:\n  url_template: \"https://x/{{.Hash}}\"",
			wantErrLike: "invalid url_template",
		},
		{
			name:        "tracker without txid",
			yaml:        "tracker:\n  url_template: \"https://x/status\"",
			wantErrLike: "must reference {{.TxID}}",
		},
		{
			name:        "tracker wrong scheme",
			yaml:        "tracker:\n  url_template: \"ftp://x/{{.TxID}}\"",
			wantErrLike: "scheme must be http or https",
		},
		{
			name:        "tracker interval too short",
			yaml:        "tracker:\n  url_template: \"https://x/{{.TxID}}\"\n  interval: 500ms",
			wantErrLike: "tracker.interval must be at least 1s",
		},
		{
			name:        "tracker interval too long",
			yaml:        "tracker:\n  url_template: \"https://x/{{.TxID}}\"\n  interval: 2h",
			wantErrLike: "tracker.interval must not exceed 1h",
		},
		{
			name:        "tracker timeout too short",
			yaml:        "tracker:\n  url_template: \"https://x/{{.TxID}}\"\n  timeout: 100ms",
			wantErrLike: "tracker.timeout must be at least 1s",
		},
		{
			name:        "tracker negative concurrency",
			yaml:        "tracker:\n  url_template: \"https://x/{{.TxID}}\"\n  max_concurrency: -2",
			wantErrLike: "max_concurrency cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	yaml := `
this is not: valid: yaml: at all
  - broken
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML, got nil")
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"hours", "1h", 1 * time.Hour, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// tracker interval must be between 1s and 1h
			yaml := "tracker:\n  url_template: \"https://x/{{.TxID}}\"\n  interval: " + tt.input

			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				if !strings.Contains(err.Error(), "invalid duration") {
					t.Errorf("error = %q, want to contain 'invalid duration'", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Tracker.Interval.Duration() != tt.want {
				t.Errorf("Interval = %v, want %v", cfg.Tracker.Interval.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false}, // set var takes precedence
		{"template braces untouched", "https://x/{{.TxID}}", "https://x/{{.TxID}}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		cfg, err := Parse([]byte("log_level: " + tt.level))
		if err != nil {
			t.Fatalf("Parse(log_level: %s) error = %v", tt.level, err)
		}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pendingtx.yaml")
	if err := os.WriteFile(path, []byte("port: 9191\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Load() error = %v, want read failure", err)
	}
}
