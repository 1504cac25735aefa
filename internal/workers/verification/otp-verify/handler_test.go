package otpverify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/flow/flowtest"
	"loan-funnel-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     "verification.otp.verify",
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_OTPVerify",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

func requireCode(t *testing.T, err error, code commonerrors.ErrorCode) *commonerrors.StandardError {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := commonerrors.AsStandardError(err)
	require.True(t, ok, "error should be StandardError: %v", err)
	assert.Equal(t, code, stdErr.Code)
	return stdErr
}

func newTestHandler(t *testing.T, env *flowtest.Env) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Logger:       env.Logger,
		Verification: env.Verification,
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Configuration Tests
// ==========================

func TestNewHandler_RequiresVerification(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.Error(t, err)
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	assert.Equal(t, 5 * time.Second, createConfigFromAppConfig(nil, nil).Timeout)

	appCfg := &config.Config{
		Workers: map[string]config.WorkerConfig{
			"verification-otp-verify": {Enabled: true, MaxJobsActive: 3, Timeout: 2500},
		},
	}
	cfg := createConfigFromAppConfig(appCfg, nil)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.MaxJobsActive)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
}

// ==========================
// Execution Tests
// ==========================

func issue(t *testing.T, env *flowtest.Env, id string) {
	t.Helper()
	_, err := env.Verification.Issue(context.Background(), id)
	require.NoError(t, err)
}

func TestHandler_Execute_LoanAcceptsAnySixDigits(t *testing.T) {
	env := flowtest.New(t)
	env.ToMobileOTP(t, "app-1", "9876543210")
	issue(t, env, "app-1")
	h := newTestHandler(t, env)
	ctx := context.Background()

	out, err := h.Execute(ctx, &Input{ApplicationID: "app-1", Code: "482"})
	require.NoError(t, err)
	assert.Equal(t, "incomplete", out.OTPResult)
	assert.False(t, out.OTPVerified)

	out, err = h.Execute(ctx, &Input{ApplicationID: "app-1", Code: "482193"})
	require.NoError(t, err)
	assert.Equal(t, "verified", out.OTPResult)
	assert.True(t, out.OTPVerified)
	assert.Equal(t, flow.StepMobileOTP, out.OTPPurpose)

	tr, err := env.Controller.Continue(ctx, "app-1", nil, flow.StepMobileOTP)
	require.NoError(t, err)
	assert.Equal(t, flow.StepAadhaar, tr.To)
}

func TestHandler_Execute_OnboardingFixedCode(t *testing.T) {
	env := flowtest.New(t)
	ctx := context.Background()
	_, err := env.Controller.Start(ctx, models.FlowOnboarding, "onb-1")
	require.NoError(t, err)
	_, err = env.Controller.Continue(ctx, "onb-1", map[string]interface{}{"mobile": "9876543210"}, flow.StepMobile)
	require.NoError(t, err)
	_, err = env.Controller.Continue(ctx, "onb-1", map[string]interface{}{"aadhaar": "123456789012"}, flow.StepAadhaar)
	require.NoError(t, err)
	issue(t, env, "onb-1")
	h := newTestHandler(t, env)

	_, err = h.Execute(ctx, &Input{ApplicationID: "onb-1", Code: "654321"})
	stdErr := requireCode(t, err, commonerrors.ErrCodeOTPMismatch)
	assert.Equal(t, 1, stdErr.Metadata["attempts"])

	out, err := h.Execute(ctx, &Input{ApplicationID: "onb-1", Code: "123456"})
	require.NoError(t, err)
	assert.True(t, out.OTPVerified)
}

func TestHandler_Execute_NoChallenge(t *testing.T) {
	env := flowtest.New(t)
	env.ToMobileOTP(t, "app-1", "9876543210")
	h := newTestHandler(t, env)

	_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", Code: "123456"})
	requireCode(t, err, commonerrors.ErrCodeOTPChallengeNotFound)
}

// ==========================
// Input Schema Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
	}{
		{"digits", map[string]interface{}{"applicationId": "app-1", "code": "123456"}, false},
		{"partial entry", map[string]interface{}{"applicationId": "app-1", "code": "12"}, false},
		{"letters", map[string]interface{}{"applicationId": "app-1", "code": "12ab56"}, true},
		{"missing code", map[string]interface{}{"applicationId": "app-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var input Input
			err := camunda.ParseInput(createMockJob(1, tt.variables), GetInputSchema(), &input)
			if tt.wantErr {
				requireCode(t, err, commonerrors.ErrCodeInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.variables["code"], input.Code)
		})
	}
}
