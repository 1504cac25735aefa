// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Funnel       FunnelConfig            `mapstructure:"funnel"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses         []string `mapstructure:"addresses"`
	Username          string   `mapstructure:"username"`
	Password          string   `mapstructure:"password"`
	URL               string   `mapstructure:"url"`
	IFSCIndex         string   `mapstructure:"ifsc_index"`
	ApplicationsIndex string   `mapstructure:"applications_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// IntegrationConfig holds settings for AWS messaging and the IFSC directory.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	IFSC IFSCConfig `mapstructure:"ifsc"`
}

// IFSCConfig points at an HTTP branch directory (Razorpay IFSC style).
type IFSCConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
	MockFallback bool   `mapstructure:"mock_fallback"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type HTTPConfig struct {
	Addr         string `mapstructure:"addr"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// --- Funnel Configuration ---

// FunnelConfig drives both the loan and the onboarding flows.
type FunnelConfig struct {
	Draft              DraftConfig       `mapstructure:"draft"`
	OTP                OTPConfig         `mapstructure:"otp"`
	Product            ProductConfig     `mapstructure:"product"`
	Eligibility        EligibilityConfig `mapstructure:"eligibility"`
	Sanction           SanctionConfig    `mapstructure:"sanction"`
	Countdowns         CountdownConfig   `mapstructure:"countdowns"`
	OnboardingProducts []string          `mapstructure:"onboarding_products"`
}

type DraftConfig struct {
	TTL       int    `mapstructure:"ttl"` // seconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

// OTPConfig selects the verifier per flow: "any", "fixed" or "issued".
type OTPConfig struct {
	Length         int    `mapstructure:"length"`
	ResendAfter    int    `mapstructure:"resend_after"` // seconds
	TTL            int    `mapstructure:"ttl"`          // seconds
	LoanMode       string `mapstructure:"loan_mode"`
	OnboardingMode string `mapstructure:"onboarding_mode"`
	FixedCode      string `mapstructure:"fixed_code"`
}

type ProductConfig struct {
	MinAmount     float64 `mapstructure:"min_amount"`
	MaxAmount     float64 `mapstructure:"max_amount"`
	AmountStep    float64 `mapstructure:"amount_step"`
	MinTenure     int     `mapstructure:"min_tenure"`
	MaxTenure     int     `mapstructure:"max_tenure"`
	TenureStep    int     `mapstructure:"tenure_step"`
	AnnualRate    float64 `mapstructure:"annual_rate"`
	FeePercent    float64 `mapstructure:"fee_percent"`
	DefaultAmount float64 `mapstructure:"default_amount"`
	DefaultTenure int     `mapstructure:"default_tenure"`
}

// EligibilityConfig is the offer shown on the eligibility step.
type EligibilityConfig struct {
	Amount       float64 `mapstructure:"amount"`
	MinEMI       float64 `mapstructure:"min_emi"`
	InterestRate float64 `mapstructure:"interest_rate"`
	MaxTenure    int     `mapstructure:"max_tenure"`
	CreditScore  int     `mapstructure:"credit_score"`
}

type SanctionConfig struct {
	AnnualRate float64 `mapstructure:"annual_rate"`
}

// CountdownConfig holds step countdowns in milliseconds.
type CountdownConfig struct {
	VideoKYC   int `mapstructure:"video_kyc"`
	KYCSuccess int `mapstructure:"kyc_success"`
	Disbursal  int `mapstructure:"disbursal"`
}
