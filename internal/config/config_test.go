package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	home := t.TempDir()
	t.Chdir(home)

	cfg, err := LoadFrom(filepath.Join(home, "missing.toml"), home)
	require.NoError(t, err)

	assert.Equal(t, StyleNormal, cfg.Style)
	assert.Equal(t, 3, cfg.MaxPersonas)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Duration)
	assert.Equal(t, filepath.Join(home, ".config", "guru", "guru.db"), cfg.DBPath)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Chdir(home)

	cfgPath := filepath.Join(home, "config.toml")
	body := `
api_url = "http://localhost:9000/api"
db_path = "~/data/guru.db"
style = "spicy"
request_timeout = "5s"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	t.Setenv("GURU_MODEL", "gpt-test")

	cfg, err := LoadFrom(cfgPath, home)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api", cfg.APIURL)
	assert.Equal(t, filepath.Join(home, "data", "guru.db"), cfg.DBPath)
	assert.Equal(t, StyleSpicy, cfg.Style)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout.Duration)
	assert.Equal(t, "gpt-test", cfg.Model)
}

func TestLoadFromDotEnv(t *testing.T) {
	home := t.TempDir()
	t.Chdir(home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("GURU_API_URL=http://dotenv/api\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GURU_API_URL") })

	cfg, err := LoadFrom(filepath.Join(home, "missing.toml"), home)
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv/api", cfg.APIURL)
}

func TestValidate(t *testing.T) {
	cfg := Defaults("/home/x")
	require.NoError(t, cfg.Validate())

	cfg.Style = "mild"
	assert.Error(t, cfg.Validate())

	cfg = Defaults("/home/x")
	cfg.MaxPersonas = 0
	assert.Error(t, cfg.Validate())
}
