package permissionreport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/flow/flowtest"

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
		Type:                     "verification.permission.report",
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_PermissionReport",
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
			"verification-permission-report": {Enabled: true, MaxJobsActive: 3, Timeout: 2500},
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

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name       string
		reports    []map[string]string
		wantStatus string
		wantDenied []string
	}{
		{
			name:       "partial report stays pending",
			reports:    []map[string]string{{"camera": "granted"}},
			wantStatus: "pending",
			wantDenied: []string{},
		},
		{
			name: "reports accumulate",
			reports: []map[string]string{
				{"camera": "granted", "microphone": "granted"},
				{"internet": "granted"},
			},
			wantStatus: "granted",
			wantDenied: []string{},
		},
		{
			name:       "denied wins",
			reports:    []map[string]string{{"camera": "denied", "microphone": "granted", "internet": "granted"}},
			wantStatus: "denied",
			wantDenied: []string{"camera"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := flowtest.New(t)
			env.StartLoan(t, "app-1")
			h := newTestHandler(t, env)

			var out *Output
			for _, r := range tt.reports {
				var err error
				out, err = h.Execute(context.Background(), &Input{ApplicationID: "app-1", Permissions: r})
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, out.PermissionStatus)
			assert.Equal(t, tt.wantDenied, out.DeniedKinds)
			assert.Len(t, out.Permissions, 3)
		})
	}
}

func TestHandler_Execute_Errors(t *testing.T) {
	env := flowtest.New(t)
	env.StartLoan(t, "app-1")
	h := newTestHandler(t, env)

	_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", Permissions: map[string]string{"location": "granted"}})
	requireCode(t, err, commonerrors.ErrCodeInvalidInput)

	_, err = h.Execute(context.Background(), &Input{ApplicationID: "missing", Permissions: map[string]string{"camera": "granted"}})
	requireCode(t, err, commonerrors.ErrCodeSessionNotFound)
}

// ==========================
// Input Schema Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	var input Input
	job := createMockJob(1, map[string]interface{}{
		"applicationId": "app-1",
		"permissions":   map[string]interface{}{"camera": "granted", "internet": "pending"},
	})
	require.NoError(t, camunda.ParseInput(job, GetInputSchema(), &input))
	assert.Equal(t, "granted", input.Permissions["camera"])

	bad := createMockJob(2, map[string]interface{}{
		"applicationId": "app-1",
		"permissions":   map[string]interface{}{"camera": "sometimes"},
	})
	err := camunda.ParseInput(bad, GetInputSchema(), &input)
	requireCode(t, err, commonerrors.ErrCodeInvalidInput)
}
