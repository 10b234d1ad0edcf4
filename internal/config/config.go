// Package config builds the process-wide configuration once at startup.
// Handlers and the store receive the resulting Config explicitly; nothing
// reads the environment after Load returns.
package config

// Config holds all service configuration values.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host string
	Port int
	// MaxConns caps simultaneously accepted connections. Zero disables the cap.
	MaxConns   int
	CORSOrigin string
	// PublicURL is the externally reachable base URL used in download links.
	// Empty means derive it from Host and Port.
	PublicURL string
}

type StorageConfig struct {
	DatabaseURL string
	// AutoCreateTables applies the schema migration on startup. Local
	// development only; production runs `engine migrate`.
	AutoCreateTables bool
}

type AuthConfig struct {
	// APIKey is the shared secret expected in X-Api-Key. Empty disables the gate.
	APIKey string
}

type LogConfig struct {
	Level string
}

type TelemetryConfig struct {
	// OTLPEndpoint receives traces and metrics over OTLP/HTTP. Empty disables export.
	OTLPEndpoint string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       8000,
			CORSOrigin: "*",
		},
		Storage: StorageConfig{
			DatabaseURL: "sqlite:///./data.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/fote-engine/config.json, then applies environment
// overrides (DATABASE_URL, AUTO_CREATE_TABLES, FANS_OF_THE_ONE_API_KEY and
// the ENGINE_* variables).
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if _, err := resolve(&cfg, b); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
