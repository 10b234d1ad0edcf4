package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend map[string]any

func newMapBackend() mapBackend { return mapBackend{} }

func (m mapBackend) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapBackend) Set(key string, value any) error { m[key] = value; return nil }

func (m mapBackend) Unset(key string) error { delete(m, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied with an empty backend.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 0 {
		t.Errorf("Server.MaxConns = %d, want 0", cfg.Server.MaxConns)
	}
	if cfg.Storage.DatabaseURL != "sqlite:///./data.db" {
		t.Errorf("Storage.DatabaseURL = %q, want %q", cfg.Storage.DatabaseURL, "sqlite:///./data.db")
	}
	if cfg.Storage.AutoCreateTables {
		t.Error("Storage.AutoCreateTables should default to false")
	}
	if cfg.Auth.APIKey != "" {
		t.Errorf("Auth.APIKey = %q, want empty (open access)", cfg.Auth.APIKey)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		t.Errorf("Telemetry.OTLPEndpoint = %q, want empty (export disabled)", cfg.Telemetry.OTLPEndpoint)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b["storage.database_url"] = "sqlite:///file.db"
	b["server.port"] = float64(9000)

	t.Setenv("DATABASE_URL", "sqlite:///env.db")
	t.Setenv("AUTO_CREATE_TABLES", "1")
	t.Setenv("FANS_OF_THE_ONE_API_KEY", "s3cret")
	t.Setenv("ENGINE_SERVER_PORT", "9100")
	t.Setenv("ENGINE_OTLP_ENDPOINT", "otel-collector:4318")
	t.Setenv("ENGINE_PUBLIC_URL", "https://engine.example.com")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.DatabaseURL != "sqlite:///env.db" {
		t.Errorf("DatabaseURL = %q, want env value", cfg.Storage.DatabaseURL)
	}
	if !cfg.Storage.AutoCreateTables {
		t.Error("AutoCreateTables = false, want true from AUTO_CREATE_TABLES=1")
	}
	if cfg.Auth.APIKey != "s3cret" {
		t.Errorf("APIKey = %q, want %q", cfg.Auth.APIKey, "s3cret")
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Telemetry.OTLPEndpoint != "otel-collector:4318" {
		t.Errorf("OTLPEndpoint = %q, want env value", cfg.Telemetry.OTLPEndpoint)
	}
	if cfg.Server.PublicURL != "https://engine.example.com" {
		t.Errorf("PublicURL = %q, want env value", cfg.Server.PublicURL)
	}
}

// TestInvalidEnvKeepsDefault verifies unparsable env values fall back to the default.
func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_SERVER_PORT", "not-a-number")
	t.Setenv("AUTO_CREATE_TABLES", "maybe")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Storage.AutoCreateTables {
		t.Error("AutoCreateTables should stay false")
	}
}

// TestSecretNotReadFromBackend verifies the API key is never taken from the config file.
func TestSecretNotReadFromBackend(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b["auth.api_key"] = "from-file"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.Auth.APIKey)
	}
}

func TestFileBackend(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "fote-engine", "config.json")

	b := newFileBackend(path)
	if err := setKeyWith(b, "server.port", "8123"); err != nil {
		t.Fatalf("setKeyWith port: %v", err)
	}
	if err := setKeyWith(b, "storage.auto_create_tables", "true"); err != nil {
		t.Fatalf("setKeyWith auto_create_tables: %v", err)
	}
	if err := setKeyWith(b, "storage.database_url", "sqlite:///tmp/x.db"); err != nil {
		t.Fatalf("setKeyWith database_url: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("Port = %d, want 8123", cfg.Server.Port)
	}
	if !cfg.Storage.AutoCreateTables {
		t.Error("AutoCreateTables = false, want true")
	}
	if cfg.Storage.DatabaseURL != "sqlite:///tmp/x.db" {
		t.Errorf("DatabaseURL = %q", cfg.Storage.DatabaseURL)
	}
}

func TestSetKeyErrors(t *testing.T) {
	b := newMapBackend()

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"unknown key", "nope.nope", "x", "unknown config key"},
		{"secret key", "auth.api_key", "x", "cannot set secret"},
		{"bad int", "server.port", "abc", "is not an integer"},
		{"bad bool", "storage.auto_create_tables", "perhaps", "is not a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setKeyWith(b, tt.key, tt.value)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestShowHidesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("FANS_OF_THE_ONE_API_KEY", "hidden")

	infos, err := showWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range infos {
		if k.Key == "auth.api_key" {
			t.Fatal("Show must not include secret keys")
		}
		if k.Value == "hidden" {
			t.Fatal("Show leaked the API key value")
		}
	}
	if len(ValidKeys()) != len(specs)-1 {
		t.Errorf("ValidKeys() = %d keys, want %d", len(ValidKeys()), len(specs)-1)
	}
}

func TestShowReportsSources(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b["server.port"] = float64(9000)
	b["log.level"] = "debug"
	t.Setenv("ENGINE_LOG_LEVEL", "warn")

	infos, err := showWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := map[string]KeyInfo{}
	for _, k := range infos {
		got[k.Key] = k
	}

	tests := []struct {
		key    string
		value  string
		source Source
	}{
		{"server.host", "127.0.0.1", SourceDefault},
		{"server.port", "9000", SourceFile},
		{"log.level", "warn", SourceEnv},
	}
	for _, tt := range tests {
		k := got[tt.key]
		if k.Value != tt.value || k.Source != tt.source {
			t.Errorf("%s = %q from %s, want %q from %s", tt.key, k.Value, k.Source, tt.value, tt.source)
		}
	}
}

func TestInvalidFileValueFailsLoad(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b["server.port"] = 80.5

	_, err := loadWith(b)
	if err == nil {
		t.Fatal("expected error for non-integer port")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error = %q, want it to name the key", err.Error())
	}
}

func TestFileBackend_NestedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)
	if err := b.Set("server.port", 8123); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set("server.host", "0.0.0.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("config is not sectioned JSON: %v\n%s", err, data)
	}
	if doc["server"]["port"] != float64(8123) || doc["server"]["host"] != "0.0.0.0" {
		t.Errorf("server section = %v", doc["server"])
	}

	if err := b.Unset("server.port"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if err := b.Unset("server.host"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	reloaded := newFileBackend(path)
	if _, ok := reloaded.Get("server.port"); ok {
		t.Error("server.port still present after Unset")
	}
	if _, ok := reloaded.doc["server"]; ok {
		t.Error("empty server section should be pruned")
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	if err := setKeyWith(b, "server.max_conns", "64"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if b["server.max_conns"] != 64 {
		t.Fatalf("stored value = %v (%T), want int 64", b["server.max_conns"], b["server.max_conns"])
	}
	if err := unsetKeyWith(b, "server.max_conns"); err != nil {
		t.Fatalf("unsetKeyWith: %v", err)
	}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.MaxConns != 0 {
		t.Errorf("MaxConns = %d, want default 0", cfg.Server.MaxConns)
	}

	if err := unsetKeyWith(b, "auth.api_key"); err == nil {
		t.Error("unsetting a secret should fail")
	}
}

func TestFileBackend_CorruptFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}
