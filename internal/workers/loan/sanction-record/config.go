package sanctionrecord

import (
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/config"
)

const configKey = "loan-sanction-record"

type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxJobsActive     int           `mapstructure:"max_jobs_active"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ApplicationsIndex string        `mapstructure:"applications_index"`
	SendLetter        bool          `mapstructure:"send_letter"`
	FromEmail         string        `mapstructure:"from_email"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		MaxJobsActive:     3,
		Timeout:           15 * time.Second,
		ApplicationsIndex: "loan_applications",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.SendLetter && c.FromEmail == "" {
		return fmt.Errorf("from_email is required when send_letter is set")
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
	if idx := appConfig.Database.Elasticsearch.ApplicationsIndex; idx != "" {
		cfg.ApplicationsIndex = idx
	}
	cfg.SendLetter = appConfig.Integrations.AWS.SES.Enabled
	cfg.FromEmail = appConfig.Integrations.AWS.SES.FromEmail
	return cfg
}
