package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nelssec/sastscan/internal/asoc"
)

type Config struct {
	ASoC      ASoCConfig      `mapstructure:"asoc"`
	Packaging PackagingConfig `mapstructure:"packaging"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ASoCConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Locale         string        `mapstructure:"locale"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReportFormat   string        `mapstructure:"report_format"`
}

type PackagingConfig struct {
	AppScanPath string `mapstructure:"appscan_path"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// flagKeys maps command line flags onto settings keys.
var flagKeys = map[string]string{
	"base-url":      "asoc.base_url",
	"poll-interval": "asoc.poll_interval",
	"timeout":       "asoc.timeout",
	"report-format": "asoc.report_format",
	"appscan":       "packaging.appscan_path",
	"log-format":    "log.format",
	"log-level":     "log.level",
}

var envKeys = map[string]string{
	"asoc.base_url":          "ASOC_BASE_URL",
	"asoc.locale":            "ASOC_LOCALE",
	"asoc.poll_interval":     "ASOC_POLL_INTERVAL",
	"asoc.timeout":           "ASOC_SCAN_TIMEOUT",
	"asoc.request_timeout":   "ASOC_REQUEST_TIMEOUT",
	"asoc.report_format":     "ASOC_REPORT_FORMAT",
	"packaging.appscan_path": "APPSCAN_CLIENT_PATH",
	"log.format":             "LOG_FORMAT",
	"log.level":              "LOG_LEVEL",
	"storage.endpoint":       "STORAGE_ENDPOINT",
	"storage.region":         "STORAGE_REGION",
	"storage.bucket":         "STORAGE_BUCKET",
	"storage.access_key":     "STORAGE_ACCESS_KEY",
	"storage.secret_key":     "STORAGE_SECRET_KEY",
	"storage.use_ssl":        "STORAGE_USE_SSL",
}

// Load resolves settings from flags, environment, the settings file and
// defaults, in that order. An explicit cfgFile must exist; the default
// ~/.config/sastscan/config.yaml is optional.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sastscan"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	v.SetDefault("asoc.base_url", asoc.DefaultBaseURL)
	v.SetDefault("asoc.locale", asoc.DefaultLocale)
	v.SetDefault("asoc.poll_interval", time.Minute)
	v.SetDefault("asoc.timeout", time.Duration(0))
	v.SetDefault("asoc.request_timeout", 2*time.Minute)
	v.SetDefault("asoc.report_format", "html")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ASoC.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid ASoC base URL %q. Set via --base-url, ASOC_BASE_URL, or settings file", c.ASoC.BaseURL)
	}
	if c.ASoC.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.ASoC.PollInterval)
	}
	if c.ASoC.Timeout < 0 {
		return fmt.Errorf("scan timeout must not be negative, got %s", c.ASoC.Timeout)
	}
	switch c.ASoC.ReportFormat {
	case "html", "pdf", "xml":
	default:
		return fmt.Errorf("unsupported report format %q (html, pdf, xml)", c.ASoC.ReportFormat)
	}
	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket required when a storage endpoint is set. Set via STORAGE_BUCKET or settings file")
	}
	return nil
}

func (c *Config) StorageEnabled() bool {
	return c.Storage.Endpoint != ""
}
