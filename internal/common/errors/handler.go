// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler handles job errors with standardized error handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError fails the job with retries when the code is retryable and
// the job still has retries left, otherwise it throws a BPMN error. The
// BPMN error is returned so callers can label metrics with its code.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) *BPMNError {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	if bpmnErr.Retries > 0 && job.Retries > 0 {
		h.failJobWithRetries(ctx, client, job, bpmnErr, RetryBackoffFor(stdErr))
	} else {
		h.throwBPMNError(ctx, client, job, bpmnErr)
	}
	return bpmnErr
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// RetriesFor returns the retry count to report on a failed job: the code's
// budget, capped by what the job still has.
func RetriesFor(bpmnErr *BPMNError, jobRetries int32) int32 {
	retries := int32(bpmnErr.Retries)
	if jobRetries > 0 && jobRetries-1 < retries {
		retries = jobRetries - 1
	}
	if retries < 0 {
		retries = 0
	}
	return retries
}

// MinGateBackoff is the retry delay for a pending gate with no known wait,
// such as an unverified OTP or unreported permissions.
const MinGateBackoff = 2 * time.Second

// RetryBackoffFor delays the retry of a pending gate until its countdown
// has run out. Other codes retry without a delay.
func RetryBackoffFor(stdErr *StandardError) time.Duration {
	if stdErr == nil || stdErr.Code != ErrCodeStepGatePending {
		return 0
	}
	var remaining time.Duration
	switch ms := stdErr.Metadata["remainingMs"].(type) {
	case int64:
		remaining = time.Duration(ms) * time.Millisecond
	case int:
		remaining = time.Duration(ms) * time.Millisecond
	case float64:
		remaining = time.Duration(ms) * time.Millisecond
	}
	if remaining < MinGateBackoff {
		return MinGateBackoff
	}
	return remaining
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, backoff time.Duration) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(RetriesFor(bpmnErr, job.Retries)).
		ErrorMessage(bpmnErr.Message)
	if backoff > 0 {
		cmd = cmd.RetryBackoff(backoff)
	}

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
