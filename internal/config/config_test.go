package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, env := range envKeys {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)

	require.NoError(t, err)
	require.Equal(t, "https://cloud.appscan.com", cfg.ASoC.BaseURL)
	require.Equal(t, time.Minute, cfg.ASoC.PollInterval)
	require.Zero(t, cfg.ASoC.Timeout)
	require.Equal(t, "html", cfg.ASoC.ReportFormat)
	require.Equal(t, "text", cfg.Log.Format)
	require.False(t, cfg.StorageEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)

	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
asoc:
  base_url: https://file.example.com
  poll_interval: 30s
  timeout: 2h
log:
  level: debug
storage:
  endpoint: minio:9000
  bucket: scans
`), 0600))
	t.Setenv("ASOC_POLL_INTERVAL", "45s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("base-url", "", "")
	flags.Duration("poll-interval", 0, "")
	require.NoError(t, flags.Parse([]string{"--base-url", "https://flag.example.com"}))

	cfg, err := Load(file, flags)

	require.NoError(t, err)
	require.Equal(t, "https://flag.example.com", cfg.ASoC.BaseURL)
	require.Equal(t, 45*time.Second, cfg.ASoC.PollInterval)
	require.Equal(t, 2*time.Hour, cfg.ASoC.Timeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.StorageEnabled())
	require.Equal(t, "scans", cfg.Storage.Bucket)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)

	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{ASoC: ASoCConfig{
			BaseURL:      "https://cloud.appscan.com",
			PollInterval: time.Minute,
			ReportFormat: "html",
		}}
	}

	cases := map[string]func(c *Config){
		"bad url":         func(c *Config) { c.ASoC.BaseURL = "cloud.appscan.com" },
		"zero interval":   func(c *Config) { c.ASoC.PollInterval = 0 },
		"negative wait":   func(c *Config) { c.ASoC.Timeout = -time.Second },
		"bad format":      func(c *Config) { c.ASoC.ReportFormat = "docx" },
		"bucket required": func(c *Config) { c.Storage.Endpoint = "minio:9000" },
	}

	require.NoError(t, valid().Validate())
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		require.Error(t, c.Validate(), name)
	}
}
