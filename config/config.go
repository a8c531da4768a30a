// config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CacheConfig struct {
	Dir           string `yaml:"dir"`
	StaleFallback bool   `yaml:"stale_fallback"`
}

type GIASConfig struct {
	CSVURLTemplate string `yaml:"csv_url_template"` // {date} is replaced with YYYYMMDD
	FallbackDays   int    `yaml:"fallback_days"`
	MinRows        int    `yaml:"min_rows"`
}

type OfstedConfig struct {
	ContentAPIURL string `yaml:"content_api_url"`
	PageURL       string `yaml:"page_url"`
	LinkFragment  string `yaml:"link_fragment"` // filename fragment identifying the MI workbook
}

type EESConfig struct {
	BaseURL string `yaml:"base_url"`
}

type PostcodesConfig struct {
	BaseURL string `yaml:"base_url"`
}

type HTTPConfig struct {
	TimeoutSecs         int `yaml:"timeout_seconds"`
	DownloadTimeoutSecs int `yaml:"download_timeout_seconds"`

	Timeout         time.Duration `yaml:"-"`
	DownloadTimeout time.Duration `yaml:"-"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	GIAS      GIASConfig      `yaml:"gias"`
	Ofsted    OfstedConfig    `yaml:"ofsted"`
	EES       EESConfig       `yaml:"ees"`
	Postcodes PostcodesConfig `yaml:"postcodes"`
	HTTP      HTTPConfig      `yaml:"http"`
}

var AppConfig Config

// LoadConfig reads configuration from a YAML file, falling back to built-in
// defaults for anything absent. A missing file is not an error: the defaults
// point at the live government endpoints, so the binary runs unconfigured.
// Environment variables (optionally loaded from .env by the caller) override
// the cache directory and endpoint bases for deployments.
func LoadConfig(configPath string) error {
	AppConfig = defaults()

	if configPath == "" {
		potentialPaths := []string{
			"config.yaml",
			"config/config.yaml",
		}
		for _, p := range potentialPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(file, &AppConfig); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&AppConfig)

	if AppConfig.Cache.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory for cache dir: %w", err)
		}
		AppConfig.Cache.Dir = filepath.Join(home, ".cache", "uk-schools-mcp")
	}

	if AppConfig.HTTP.TimeoutSecs <= 0 {
		AppConfig.HTTP.TimeoutSecs = 30
	}
	if AppConfig.HTTP.DownloadTimeoutSecs <= 0 {
		AppConfig.HTTP.DownloadTimeoutSecs = 120
	}
	AppConfig.HTTP.Timeout = time.Duration(AppConfig.HTTP.TimeoutSecs) * time.Second
	AppConfig.HTTP.DownloadTimeout = time.Duration(AppConfig.HTTP.DownloadTimeoutSecs) * time.Second

	// How many days back to retry the dated registry URL before giving up.
	// Not specified upstream; tunable.
	if AppConfig.GIAS.FallbackDays <= 0 {
		AppConfig.GIAS.FallbackDays = 3
	}
	if AppConfig.GIAS.MinRows <= 0 {
		AppConfig.GIAS.MinRows = 10000
	}

	return nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Name:    "uk-schools",
			Version: "0.2.0",
		},
		Cache: CacheConfig{
			StaleFallback: true,
		},
		GIAS: GIASConfig{
			CSVURLTemplate: "https://ea-edubase-api-prod.azurewebsites.net/edubase/downloads/public/edubasealldata{date}.csv",
			FallbackDays:   3,
			MinRows:        10000,
		},
		Ofsted: OfstedConfig{
			ContentAPIURL: "https://www.gov.uk/api/content/government/statistical-data-sets/monthly-management-information-ofsteds-school-inspections-outcomes",
			PageURL:       "https://www.gov.uk/government/statistical-data-sets/monthly-management-information-ofsteds-school-inspections-outcomes",
			LinkFragment:  "state-funded_schools",
		},
		EES: EESConfig{
			BaseURL: "https://api.education.gov.uk/statistics/v1",
		},
		Postcodes: PostcodesConfig{
			BaseURL: "https://api.postcodes.io",
		},
		HTTP: HTTPConfig{
			TimeoutSecs:         30,
			DownloadTimeoutSecs: 120,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UKSCHOOLS_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("UKSCHOOLS_GIAS_CSV_URL"); v != "" {
		cfg.GIAS.CSVURLTemplate = v
	}
	if v := os.Getenv("UKSCHOOLS_EES_BASE_URL"); v != "" {
		cfg.EES.BaseURL = v
	}
	if v := os.Getenv("UKSCHOOLS_POSTCODES_BASE_URL"); v != "" {
		cfg.Postcodes.BaseURL = v
	}
	if v := os.Getenv("UKSCHOOLS_STALE_FALLBACK"); v == "false" {
		cfg.Cache.StaleFallback = false
	}
}
