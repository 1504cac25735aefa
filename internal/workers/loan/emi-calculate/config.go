package emicalculate

import (
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/flow"
)

const configKey = "loan-emi-calculate"

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Product       emi.Product   `mapstructure:"-"`
	Calculator    emi.Product   `mapstructure:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       2 * time.Second,
		Product:       emi.PersonalLoan,
		Calculator:    emi.FreeCalculator,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.Product.MaxAmount <= c.Product.MinAmount {
		return fmt.Errorf("product amount range is empty")
	}
	if c.Calculator.MaxAmount <= c.Calculator.MinAmount {
		return fmt.Errorf("calculator amount range is empty")
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
	if p := flow.ConfigFromApp(appConfig).Product; p.MaxAmount > 0 {
		cfg.Product = p
	}
	return cfg
}
