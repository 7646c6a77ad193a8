package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recall/internal/credential"
)

// secretKeys are sealed when written and masked when read back. Values
// that reference an environment variable are stored as written.
var secretKeys = map[string]bool{
	"provider.api_key": true,
}

// Set writes key (dot separated, e.g. "provider.name") into the YAML file at
// path, creating the file if needed. value is parsed as a YAML scalar or
// flow sequence so "5" is stored as a number and "[a, b]" as a list.
func Set(path, key, value string) error {
	parts := splitKey(key)
	if parts == nil {
		return fmt.Errorf("invalid config key %q", key)
	}

	doc, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}

	if secretKeys[key] && !envRef.MatchString(value) {
		sealed, err := sealSecret(value)
		if err != nil {
			return err
		}
		parsed = sealed
	}

	node := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = parsed

	// Reject values that would make the file unloadable.
	if _, err := decodeRaw(doc); err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns the effective value of key: the file value, an environment
// override, or the default. Unknown keys yield "".
func Get(path, key string) (string, error) {
	v := newViper(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if !v.IsSet(key) {
		return "", nil
	}
	switch val := v.Get(key).(type) {
	case string:
		if secretKeys[key] {
			return credential.Mask(val), nil
		}
		return interpolateString(val), nil
	case []any, []string, map[string]any:
		out, err := yaml.Marshal(val)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	default:
		return fmt.Sprint(val), nil
	}
}

func readRaw(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return doc, nil
}

// decodeRaw validates a raw document by loading it through a temp file.
func decodeRaw(doc map[string]any) (*Config, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "recall-config-*.yaml")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(out); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return Load(f.Name())
}

func splitKey(key string) []string {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

func sealSecret(value string) (string, error) {
	s, err := credential.NewSealer()
	if err != nil {
		return "", err
	}
	return s.Seal(value)
}
