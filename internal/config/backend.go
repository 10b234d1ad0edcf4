package config

// Backend persists non-secret keys. Values are JSON scalars as decoded by
// encoding/json (string, float64 or bool) or as handed to Set after parsing.
type Backend interface {
	Get(key string) (value any, ok bool)
	Set(key string, value any) error
	Unset(key string) error
}
