// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over
// it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found near the working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are commonly provided without the
// nested key prefix.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Integrations.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Integrations.AWS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "loan-funnel-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	es := &cfg.Database.Elasticsearch
	if es.URL == "" && len(es.Addresses) > 0 {
		es.URL = es.Addresses[0]
	}
	if len(es.Addresses) == 0 && es.URL != "" {
		es.Addresses = []string{es.URL}
	}
	if es.IFSCIndex == "" {
		es.IFSCIndex = "ifsc_branches"
	}
	if es.ApplicationsIndex == "" {
		es.ApplicationsIndex = "loan_applications"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10000
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10000
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}

	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "ap-south-1"
	}
	if cfg.Integrations.IFSC.Timeout == 0 {
		cfg.Integrations.IFSC.Timeout = 5000
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	applyFunnelDefaults(&cfg.Funnel)
}

func applyFunnelDefaults(f *FunnelConfig) {
	if f.Draft.TTL == 0 {
		f.Draft.TTL = 86400
	}
	if f.Draft.KeyPrefix == "" {
		f.Draft.KeyPrefix = "draft"
	}

	if f.OTP.Length == 0 {
		f.OTP.Length = 6
	}
	if f.OTP.ResendAfter == 0 {
		f.OTP.ResendAfter = 30
	}
	if f.OTP.TTL == 0 {
		f.OTP.TTL = 600
	}
	if f.OTP.LoanMode == "" {
		f.OTP.LoanMode = "any"
	}
	if f.OTP.OnboardingMode == "" {
		f.OTP.OnboardingMode = "fixed"
	}
	if f.OTP.FixedCode == "" {
		f.OTP.FixedCode = "123456"
	}

	p := &f.Product
	if p.MinAmount == 0 {
		p.MinAmount = 50000
	}
	if p.MaxAmount == 0 {
		p.MaxAmount = 1000000
	}
	if p.AmountStep == 0 {
		p.AmountStep = 10000
	}
	if p.MinTenure == 0 {
		p.MinTenure = 6
	}
	if p.MaxTenure == 0 {
		p.MaxTenure = 60
	}
	if p.TenureStep == 0 {
		p.TenureStep = 6
	}
	if p.AnnualRate == 0 {
		p.AnnualRate = 13
	}
	if p.FeePercent == 0 {
		p.FeePercent = 2
	}
	if p.DefaultAmount == 0 {
		p.DefaultAmount = 500000
	}
	if p.DefaultTenure == 0 {
		p.DefaultTenure = 24
	}

	e := &f.Eligibility
	if e.Amount == 0 {
		e.Amount = 1000000
	}
	if e.MinEMI == 0 {
		e.MinEMI = 33333
	}
	if e.InterestRate == 0 {
		e.InterestRate = 13
	}
	if e.MaxTenure == 0 {
		e.MaxTenure = 30
	}
	if e.CreditScore == 0 {
		e.CreditScore = 780
	}

	if f.Sanction.AnnualRate == 0 {
		f.Sanction.AnnualRate = 10.99
	}

	if f.Countdowns.VideoKYC == 0 {
		f.Countdowns.VideoKYC = 20000
	}
	if f.Countdowns.KYCSuccess == 0 {
		f.Countdowns.KYCSuccess = 3000
	}
	if f.Countdowns.Disbursal == 0 {
		f.Countdowns.Disbursal = 8000
	}

	if len(f.OnboardingProducts) == 0 {
		f.OnboardingProducts = []string{"savings", "current", "salary"}
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	p := cfg.Funnel.Product
	if p.MinAmount > p.MaxAmount {
		return fmt.Errorf("funnel.product.min_amount exceeds max_amount")
	}
	if p.MinTenure > p.MaxTenure {
		return fmt.Errorf("funnel.product.min_tenure exceeds max_tenure")
	}
	for _, mode := range []string{cfg.Funnel.OTP.LoanMode, cfg.Funnel.OTP.OnboardingMode} {
		switch mode {
		case "any", "fixed", "issued":
		default:
			return fmt.Errorf("funnel.otp mode %q must be any, fixed or issued", mode)
		}
	}
	if len(cfg.Funnel.OTP.FixedCode) != cfg.Funnel.OTP.Length {
		return fmt.Errorf("funnel.otp.fixed_code must have %d digits", cfg.Funnel.OTP.Length)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetSeconds converts seconds from config to time.Duration
func GetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
