package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileBackend keeps configuration in a JSON document with one object per
// section, so "server.port" lives at {"server": {"port": 8000}}.
type fileBackend struct {
	path string
	doc  map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, doc: map[string]any{}}
	b.load()
	return b
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "fote-engine", "config.json")
}

func (b *fileBackend) load() {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		warnf("could not read config file %s: %v. Using defaults.", b.path, err)
		return
	}
	if err := json.Unmarshal(data, &b.doc); err != nil {
		warnf("could not parse config file %s: %v. Using defaults.", b.path, err)
		b.doc = map[string]any{}
	}
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, append(data, '\n'), 0o600)
}

// section returns the object holding the leaf of key, creating missing
// sections when create is set.
func (b *fileBackend) section(key string, create bool) (map[string]any, string) {
	parts := strings.Split(key, ".")
	node := b.doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			if !create {
				return nil, ""
			}
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	return node, parts[len(parts)-1]
}

func (b *fileBackend) Get(key string) (any, bool) {
	node, leaf := b.section(key, false)
	if node == nil {
		return nil, false
	}
	v, ok := node[leaf]
	return v, ok
}

func (b *fileBackend) Set(key string, value any) error {
	node, leaf := b.section(key, true)
	node[leaf] = value
	return b.save()
}

func (b *fileBackend) Unset(key string) error {
	node, leaf := b.section(key, false)
	if node == nil {
		return nil
	}
	if _, ok := node[leaf]; !ok {
		return nil
	}
	delete(node, leaf)
	if len(node) == 0 {
		if i := strings.LastIndex(key, "."); i > 0 {
			if parent, name := b.section(key[:i], false); parent != nil {
				delete(parent, name)
			}
		}
	}
	return b.save()
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
}
