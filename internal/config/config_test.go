package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30, cfg.Logging.RotationDays)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(home, ".releng", "history.db"), cfg.History.Path)
	assert.Equal(t, "releng", cfg.Metrics.Job)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSeconds)
	assert.Equal(t, 600, cfg.Sign.TimeoutSeconds)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", `
logging:
  level: DEBUG
  file: /tmp/releng.log
  rotation_days: 7
history:
  enabled: false
  path: /srv/releng/history.db
metrics:
  textfile: /var/lib/node_exporter/releng.prom
  job: nightly
fetch:
  workers: 8
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/releng.log", cfg.Logging.File)
	assert.Equal(t, 7, cfg.Logging.RotationDays)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "/srv/releng/history.db", cfg.History.Path)
	assert.Equal(t, "/var/lib/node_exporter/releng.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "nightly", cfg.Metrics.Job)
	assert.Equal(t, 8, cfg.Fetch.Workers)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSeconds)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	writeFile(t, dir, "releng.yaml", "fetch:\n  workers: 2\n")
	chdir(t, dir)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Fetch.Workers)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	t.Setenv("RELENG_LOGGING_LEVEL", "error")
	t.Setenv("RELENG_FETCH_WORKERS", "16")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 16, cfg.Fetch.Workers)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"negative rotation", "logging:\n  rotation_days: -1\n"},
		{"job with slash", "metrics:\n  job: a/b\n"},
		{"malformed yaml", "logging: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "c.yaml", tt.content)
			_, err := Load(viper.New(), path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(viper.New(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "rules.yaml", `
preserve:
  - "bin/* lib/**"
  - README
`)
	rf, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/* lib/**", "README"}, rf.Preserve)
	assert.Empty(t, rf.Remove)

	empty := writeFile(t, dir, "empty.yaml", "")
	rf, err = LoadRules(empty)
	require.NoError(t, err)
	assert.Empty(t, rf.Preserve)
	assert.Empty(t, rf.Remove)

	typo := writeFile(t, dir, "typo.yaml", "preserv:\n  - a\n")
	_, err = LoadRules(typo)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}
