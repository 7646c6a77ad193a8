package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/recall/internal/memory"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	t.Setenv("RECALL_HOME", t.TempDir())

	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, memory.DefaultConfig(), cfg.Memory)
	assert.Equal(t, "stub", cfg.Provider.Name)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(HomeDir(), "memory.db"), cfg.Database.Path)
	assert.Equal(t, []string{"**"}, cfg.Guard.AllowedCategories)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
database:
  path: /tmp/recall-test.db
memory:
  working_capacity: 7
  consolidation_interval: 3
logging:
  level: debug
  format: json
provider:
  name: openai
  model: gpt-4o-mini
guard:
  denied_categories: [system]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/recall-test.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Memory.WorkingCapacity)
	assert.Equal(t, 3, cfg.Memory.ConsolidationInterval)
	assert.Equal(t, 10, cfg.Memory.TurnCapacity)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, []string{"system"}, cfg.Guard.DeniedCategories)
}

func TestLoad_EnvironmentInterpolation(t *testing.T) {
	t.Setenv("RECALL_TEST_KEY", "sk-test")
	path := writeFile(t, `
provider:
  name: openai
  api_key: ${RECALL_TEST_KEY}
  base_url: ${RECALL_TEST_UNSET}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "${RECALL_TEST_UNSET}", cfg.Provider.BaseURL)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("RECALL_PROVIDER_NAME", "ollama")
	t.Setenv("RECALL_MEMORY_WORKING_CAPACITY", "12")
	path := writeFile(t, "provider:\n  name: openai\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, 12, cfg.Memory.WorkingCapacity)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"unknown provider", "provider:\n  name: mystery\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"negative capacity", "memory:\n  working_capacity: -1\n"},
		{"threshold out of range", "memory:\n  promotion_threshold: 9\n"},
		{"bad glob", "guard:\n  allowed_categories: ['[']\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, memory.NewError(memory.ErrCodeInvalidConfig, ""))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Set(path, "provider.name", "gemini"))
	require.NoError(t, Set(path, "memory.working_capacity", "15"))
	require.NoError(t, Set(path, "guard.denied_categories", "[system, secrets]"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, 15, cfg.Memory.WorkingCapacity)
	assert.Equal(t, []string{"system", "secrets"}, cfg.Guard.DeniedCategories)

	val, err := Get(path, "provider.name")
	require.NoError(t, err)
	assert.Equal(t, "gemini", val)

	val, err = Get(path, "memory.working_capacity")
	require.NoError(t, err)
	assert.Equal(t, "15", val)

	val, err = Get(path, "memory.turn_capacity")
	require.NoError(t, err)
	assert.Equal(t, "10", val)

	val, err = Get(path, "no.such.key")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestSet_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Set(path, "provider.name", "ollama"))

	assert.Error(t, Set(path, "provider.name", "mystery"))
	assert.Error(t, Set(path, "provider..name", "stub"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
}

func TestSet_SealsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Set(path, "provider.api_key", "sk-1234567890abcdef"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-1234567890abcdef")
	assert.Contains(t, string(raw), "enc:v1:")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-1234567890abcdef", cfg.Provider.APIKey)

	val, err := Get(path, "provider.api_key")
	require.NoError(t, err)
	assert.Equal(t, "enc:v1:****", val)

	require.NoError(t, Set(path, "provider.api_key", "${OPENAI_API_KEY}"))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "${OPENAI_API_KEY}")
}
