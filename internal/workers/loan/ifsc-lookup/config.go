package ifsclookup

import (
	"fmt"
	"strings"
	"time"

	"loan-funnel-workers/internal/common/config"
)

const configKey = "loan-ifsc-lookup"

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Index         string        `mapstructure:"index"`
	DirectoryURL  string        `mapstructure:"directory_url"`
	MockFallback  bool          `mapstructure:"mock_fallback"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       8 * time.Second,
		Index:         "ifsc_branches",
		MockFallback:  true,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.Index == "" {
		return fmt.Errorf("index is required")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}
	if workerCfg, exists := appConfig.Workers[configKey]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}
	if idx := appConfig.Database.Elasticsearch.IFSCIndex; idx != "" {
		cfg.Index = idx
	}
	cfg.DirectoryURL = strings.TrimRight(appConfig.Integrations.IFSC.BaseURL, "/")
	cfg.MockFallback = appConfig.Integrations.IFSC.MockFallback
	return cfg
}
