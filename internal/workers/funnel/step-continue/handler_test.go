package stepcontinue

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
	"loan-funnel-workers/internal/permission"

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
		Type:                     "funnel.step.continue",
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_StepContinue",
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
		Controller:   env.Controller,
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Configuration Tests
// ==========================

func TestNewHandler_RequiresController(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.Error(t, err)
}

func TestNewHandler_InvalidConfig(t *testing.T) {
	env := flowtest.New(t)
	_, err := NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: true, MaxJobsActive: 1},
		Controller:   env.Controller,
	})
	assert.Error(t, err)
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	assert.Equal(t, 5 * time.Second, createConfigFromAppConfig(nil, nil).Timeout)

	appCfg := &config.Config{
		Workers: map[string]config.WorkerConfig{
			"funnel-step-continue": {Enabled: false, MaxJobsActive: 4, Timeout: 1500},
		},
	}
	cfg := createConfigFromAppConfig(appCfg, nil)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 4, cfg.MaxJobsActive)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)

	custom := &Config{Enabled: true, MaxJobsActive: 2, Timeout: time.Second}
	assert.Same(t, custom, createConfigFromAppConfig(appCfg, custom))
}

// ==========================
// Execution Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		wantStep string
		wantErr  commonerrors.ErrorCode
		check    func(t *testing.T, err error)
	}{
		{
			name:     "valid mobile advances",
			input:    &Input{ApplicationID: "app-1", Fields: map[string]interface{}{"mobile": "9876543210"}, ExpectedStep: flow.StepMobile},
			wantStep: flow.StepMobileOTP,
		},
		{
			name:    "invalid mobile reports the field",
			input:   &Input{ApplicationID: "app-1", Fields: map[string]interface{}{"mobile": "12345"}},
			wantErr: commonerrors.ErrCodeFieldValidationFailed,
			check: func(t *testing.T, err error) {
				fe := flow.FieldErrors(err)
				require.NotNil(t, fe)
				assert.Contains(t, fe, "mobile")
			},
		},
		{
			name:    "stale expected step",
			input:   &Input{ApplicationID: "app-1", Fields: map[string]interface{}{"mobile": "9876543210"}, ExpectedStep: flow.StepPAN},
			wantErr: commonerrors.ErrCodeStepMismatch,
		},
		{
			name:    "unknown session",
			input:   &Input{ApplicationID: "missing"},
			wantErr: commonerrors.ErrCodeSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := flowtest.New(t)
			env.StartLoan(t, "app-1")
			h := newTestHandler(t, env)

			out, err := h.Execute(context.Background(), tt.input)
			if tt.wantErr != "" {
				requireCode(t, err, tt.wantErr)
				if tt.check != nil {
					tt.check(t, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, flow.StepMobile, out.FromStep)
			assert.Equal(t, tt.wantStep, out.CurrentStep)
			assert.Equal(t, 1, out.Ordinal)
			assert.False(t, out.FlowCompleted)
		})
	}
}

func TestHandler_Execute_GateHoldsUntilVerified(t *testing.T) {
	env := flowtest.New(t)
	env.ToMobileOTP(t, "app-1", "9876543210")
	h := newTestHandler(t, env)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Input{ApplicationID: "app-1"})
	requireCode(t, err, commonerrors.ErrCodeStepGatePending)

	require.NoError(t, env.Controller.SatisfyGate(ctx, "app-1", flow.StepMobileOTP))
	out, err := h.Execute(ctx, &Input{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, flow.StepAadhaar, out.CurrentStep)
}

func TestHandler_Execute_TimedGate(t *testing.T) {
	env := flowtest.New(t)
	ctx := context.Background()
	_, err := env.Controller.Start(ctx, models.FlowLoan, "app-1")
	require.NoError(t, err)
	h := newTestHandler(t, env)

	inputs := []struct {
		step   string
		fields map[string]interface{}
	}{
		{flow.StepMobile, map[string]interface{}{"mobile": "9876543210"}},
		{flow.StepMobileOTP, nil},
		{flow.StepAadhaar, map[string]interface{}{"aadhaar": "123456789012"}},
		{flow.StepAadhaarOTP, nil},
		{flow.StepPAN, map[string]interface{}{"pan": "ABCDE1234F", "name": "Priya Sharma", "dob": "24/10/1997"}},
		{flow.StepPersonalReview, nil},
		{flow.StepBasicDetails, map[string]interface{}{
			"email": "priya@example.com", "occupation": "Salaried", "companyName": "Acme Corp",
			"annualIncome": "1200000", "motherName": "Sunita Sharma",
		}},
		{flow.StepEligibility, nil},
		{flow.StepCustomise, map[string]interface{}{"loanAmount": 500000, "tenure": 24}},
		{flow.StepBankDetails, map[string]interface{}{
			"ifscCode": "SBIN0001234", "accountHolderName": "Priya Sharma", "accountNumber": "123456789012",
			"accountType": "savings", "branchName": "MG Road Branch", "bankName": "State Bank of India",
		}},
	}
	for _, in := range inputs {
		if in.step == flow.StepMobileOTP || in.step == flow.StepAadhaarOTP {
			require.NoError(t, env.Controller.SatisfyGate(ctx, "app-1", in.step))
		}
		_, err := h.Execute(ctx, &Input{ApplicationID: "app-1", Fields: in.fields, ExpectedStep: in.step})
		require.NoError(t, err, "step %s", in.step)
	}

	_, err = h.Execute(ctx, &Input{ApplicationID: "app-1", ExpectedStep: flow.StepVideoKYC})
	requireCode(t, err, commonerrors.ErrCodeStepGatePending)

	env.Clock.Advance(20 * time.Second)
	out, err := h.Execute(ctx, &Input{ApplicationID: "app-1", ExpectedStep: flow.StepVideoKYC})
	require.NoError(t, err)
	assert.Equal(t, flow.StepKYCPrompt, out.CurrentStep)

	_, err = h.Execute(ctx, &Input{ApplicationID: "app-1"})
	requireCode(t, err, commonerrors.ErrCodeStepGatePending)

	env.Permissions.Set("app-1", permission.Camera, permission.Denied)
	_, err = h.Execute(ctx, &Input{ApplicationID: "app-1"})
	requireCode(t, err, commonerrors.ErrCodePermissionDenied)

	env.GrantKYC("app-1")
	out, err = h.Execute(ctx, &Input{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, flow.StepKYCSuccess, out.CurrentStep)
}

// ==========================
// Input Schema Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	var input Input
	job := createMockJob(1, map[string]interface{}{
		"applicationId": "app-1",
		"expectedStep":  "mobile",
		"fields":        map[string]interface{}{"mobile": "9876543210"},
	})
	require.NoError(t, camunda.ParseInput(job, GetInputSchema(), &input))
	assert.Equal(t, "9876543210", input.Fields["mobile"])
	assert.Equal(t, "mobile", input.ExpectedStep)

	bad := createMockJob(2, map[string]interface{}{"applicationId": "app-1", "fields": "mobile=1"})
	err := camunda.ParseInput(bad, GetInputSchema(), &input)
	requireCode(t, err, commonerrors.ErrCodeInvalidInput)
}
