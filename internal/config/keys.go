package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// specs lists every configurable key. The storage and auth variables keep
// their historical unprefixed names so existing deployments keep working.
var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "ENGINE_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "ENGINE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "ENGINE_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.cors_origin", typ: kString, env: "ENGINE_CORS_ORIGIN",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigin = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigin },
	},
	{
		key: "server.public_url", typ: kString, env: "ENGINE_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.PublicURL },
	},
	{
		key: "storage.database_url", typ: kString, env: "DATABASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.DatabaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DatabaseURL },
	},
	{
		key: "storage.auto_create_tables", typ: kBool, env: "AUTO_CREATE_TABLES",
		apply:   func(cfg *Config, v any) { cfg.Storage.AutoCreateTables = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.AutoCreateTables },
	},
	{
		key: "auth.api_key", typ: kString, env: "FANS_OF_THE_ONE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIKey },
	},
	{
		key: "log.level", typ: kString, env: "ENGINE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "ENGINE_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
}

// Source reports where a key's effective value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts a value from the config file or the environment into the
// key's Go type.
func (s keySpec) parse(v any) (any, error) {
	switch s.typ {
	case kString:
		if str, ok := v.(string); ok {
			return str, nil
		}
		return fmt.Sprint(v), nil
	case kInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int(n), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			return i, nil
		}
	case kBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			bv, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return bv, nil
		}
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
}

// resolve layers the backend and then the environment over cfg and records
// the source of every key. Bad file values fail the load; bad environment
// values are reported and ignored.
func resolve(cfg *Config, b Backend) (map[string]Source, error) {
	sources := make(map[string]Source, len(specs))
	for _, s := range specs {
		sources[s.key] = SourceDefault

		if !s.secret {
			if raw, ok := b.Get(s.key); ok {
				v, err := s.parse(raw)
				if err != nil {
					return nil, fmt.Errorf("config file key %s: %w", s.key, err)
				}
				s.apply(cfg, v)
				sources[s.key] = SourceFile
			}
		}

		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			warnf("ignoring %s: %v", s.env, err)
			continue
		}
		s.apply(cfg, v)
		sources[s.key] = SourceEnv
	}
	return sources, nil
}
