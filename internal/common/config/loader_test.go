package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: ${TEST_ZEEBE_ADDRESS}
database:
  postgres:
    host: db
    database: loan_funnel
  elasticsearch:
    url: http://es:9200
  redis:
    address: redis:6379
workers:
  loan-emi-calculate:
    enabled: false
    timeout: 2000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_ZEEBE_ADDRESS", "zeebe:26500")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "zeebe:26500", cfg.Camunda.BrokerAddress)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Database.Elasticsearch.Addresses)
	assert.Equal(t, "ifsc_branches", cfg.Database.Elasticsearch.IFSCIndex)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	f := cfg.Funnel
	assert.Equal(t, 6, f.OTP.Length)
	assert.Equal(t, 30, f.OTP.ResendAfter)
	assert.Equal(t, "any", f.OTP.LoanMode)
	assert.Equal(t, "fixed", f.OTP.OnboardingMode)
	assert.Equal(t, "123456", f.OTP.FixedCode)
	assert.Equal(t, 500000.0, f.Product.DefaultAmount)
	assert.Equal(t, 24, f.Product.DefaultTenure)
	assert.Equal(t, 13.0, f.Product.AnnualRate)
	assert.Equal(t, 10.99, f.Sanction.AnnualRate)
	assert.Equal(t, 20000, f.Countdowns.VideoKYC)
	assert.Equal(t, 8000, f.Countdowns.Disbursal)
}

func TestLoadFromFile_WorkerSettings(t *testing.T) {
	t.Setenv("TEST_ZEEBE_ADDRESS", "zeebe:26500")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	emi := GetWorkerConfig(cfg, "loan-emi-calculate")
	assert.False(t, emi.Enabled)
	assert.Equal(t, 2000, emi.Timeout)
	assert.Equal(t, 5, emi.MaxJobsActive)
	assert.Equal(t, 3, emi.MaxRetries)
	assert.False(t, IsWorkerEnabled(cfg, "loan-emi-calculate"))

	unknown := GetWorkerConfig(cfg, "funnel-step-back")
	assert.True(t, unknown.Enabled)
	assert.Equal(t, 30000, unknown.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "funnel-step-back"))
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	t.Setenv("TEST_ZEEBE_ADDRESS", "zeebe:26500")
	t.Setenv("DATABASE_REDIS_ADDRESS", "override:6379")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "override:6379", cfg.Database.Redis.Address)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  redis:\n    address: r:1\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name: "bad otp mode",
			body: minimalYAML + `
funnel:
  otp:
    loan_mode: sometimes
`,
			wantErr: `funnel.otp mode "sometimes"`,
		},
		{
			name: "fixed code length",
			body: minimalYAML + `
funnel:
  otp:
    fixed_code: "1234"
`,
			wantErr: "funnel.otp.fixed_code must have 6 digits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ZEEBE_ADDRESS", "zeebe:26500")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, 30*time.Second, GetSeconds(30))
}

func TestLoad_MergesEnvironmentProfile(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:26500", cfg.Camunda.BrokerAddress)
	assert.Equal(t, "localhost:6380", cfg.Database.Redis.Address)
	assert.Equal(t, "loan_funnel", cfg.Database.Postgres.Database)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Integrations.IFSC.MockFallback)
	assert.True(t, IsWorkerEnabled(cfg, "loan-sanction-record"))
}
