// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Funnel business errors. None of these are retried by the engine.
const (
	ErrCodeFieldValidationFailed ErrorCode = "FIELD_VALIDATION_FAILED"
	ErrCodeInvalidLoanTerms      ErrorCode = "INVALID_LOAN_TERMS"
	ErrCodeOTPMismatch           ErrorCode = "OTP_MISMATCH"
	ErrCodeOTPChallengeNotFound  ErrorCode = "OTP_CHALLENGE_NOT_FOUND"
	ErrCodeOTPResendTooSoon      ErrorCode = "OTP_RESEND_TOO_SOON"
	ErrCodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	ErrCodeStepMismatch          ErrorCode = "STEP_MISMATCH"
	ErrCodeFlowComplete          ErrorCode = "FLOW_COMPLETE"
	ErrCodeNoPreviousStep        ErrorCode = "NO_PREVIOUS_STEP"
	ErrCodeUnknownFlow           ErrorCode = "UNKNOWN_FLOW"
	ErrCodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeIFSCNotFound          ErrorCode = "IFSC_NOT_FOUND"
	ErrCodeApplicationNotFound   ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeDraftCorrupt          ErrorCode = "DRAFT_CORRUPT"
	ErrCodeInvalidInput          ErrorCode = "INVALID_INPUT"
)

// Gate errors. The step is waiting on time or on the device, so the job is
// failed with retries and picked up again later.
const (
	ErrCodeStepGatePending ErrorCode = "STEP_GATE_PENDING"
)

// Technical errors.
const (
	ErrCodeDraftStoreFailed              ErrorCode = "DRAFT_STORE_FAILED"
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed          ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeQueryExecutionFailed          ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout                  ErrorCode = "QUERY_TIMEOUT"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout                 ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExternalServiceError          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeoutError                  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternalError                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError unwraps err looking for a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewFieldValidationError carries per-field inline messages in Metadata["fields"].
func NewFieldValidationError(fields map[string]string) *StandardError {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	e := newError(ErrCodeFieldValidationFailed, "One or more fields are invalid", strings.Join(names, ","), false)
	return e.WithMetadata("fields", fields)
}

func NewInvalidLoanTermsError(details string) *StandardError {
	return newError(ErrCodeInvalidLoanTerms, "Loan terms are outside the product bounds", details, false)
}

func NewOTPMismatchError(details string) *StandardError {
	return newError(ErrCodeOTPMismatch, "The code entered does not match", details, false)
}

func NewOTPChallengeNotFoundError(subject string) *StandardError {
	return newError(ErrCodeOTPChallengeNotFound, "No active verification code", subject, false)
}

// NewOTPResendTooSoonError records the wait in Metadata["retryAfterSeconds"].
func NewOTPResendTooSoonError(wait time.Duration) *StandardError {
	e := newError(ErrCodeOTPResendTooSoon, "A new code can be requested once the countdown ends", wait.String(), false)
	return e.WithMetadata("retryAfterSeconds", int(wait.Round(time.Second).Seconds()))
}

func NewPermissionDeniedError(kinds []string) *StandardError {
	e := newError(ErrCodePermissionDenied, "Required device permissions were denied", strings.Join(kinds, ","), false)
	return e.WithMetadata("denied", kinds)
}

// NewStepGatePendingError is retryable: the step becomes passable by waiting.
func NewStepGatePendingError(step string, remaining time.Duration) *StandardError {
	e := newError(ErrCodeStepGatePending, fmt.Sprintf("Step %s is not ready yet", step), remaining.String(), true)
	return e.WithMetadata("remainingMs", remaining.Milliseconds())
}

func NewStepMismatchError(expected, actual string) *StandardError {
	e := newError(ErrCodeStepMismatch, "Session is on a different step", fmt.Sprintf("expected %s, current %s", expected, actual), false)
	return e.WithMetadata("currentStep", actual)
}

func NewFlowCompleteError(applicationID string) *StandardError {
	return newError(ErrCodeFlowComplete, "The flow has already completed", applicationID, false)
}

func NewNoPreviousStepError(step string) *StandardError {
	return newError(ErrCodeNoPreviousStep, "There is no previous step", step, false)
}

func NewUnknownFlowError(flow string) *StandardError {
	return newError(ErrCodeUnknownFlow, "Unknown flow", flow, false)
}

func NewSessionNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeSessionNotFound, "No session for application", applicationID, false)
}

func NewIFSCNotFoundError(ifsc string) *StandardError {
	return newError(ErrCodeIFSCNotFound, "No branch found for IFSC", ifsc, false)
}

func NewApplicationNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application record not found", applicationID, false)
}

func NewDraftCorruptError(key string, err error) *StandardError {
	return newError(ErrCodeDraftCorrupt, "Stored draft could not be read", fmt.Sprintf("%s: %v", key, err), false)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false)
}

func NewDraftStoreError(err error) *StandardError {
	return newError(ErrCodeDraftStoreFailed, "Draft store unavailable", err.Error(), true)
}

func NewDatabaseInsertError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Failed to write application record", err.Error(), true)
}

func NewQueryExecutionError(err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query failed", err.Error(), true)
}

func NewSearchQueryError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search query failed", err.Error(), true)
}

func NewNotificationSendError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, fmt.Sprintf("Failed to send %s notification", channel), err.Error(), true)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalServiceError, fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeoutError, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternalError, "Unexpected error", err.Error(), false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal codes to the error codes the process model
// catches on boundary events. Codes missing here are thrown unchanged.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeFieldValidationFailed: "FIELD_VALIDATION_FAILED",
	ErrCodeInvalidLoanTerms:      "INVALID_LOAN_TERMS",
	ErrCodeOTPMismatch:           "OTP_MISMATCH",
	ErrCodeOTPChallengeNotFound:  "OTP_MISMATCH",
	ErrCodeOTPResendTooSoon:      "OTP_RESEND_TOO_SOON",
	ErrCodePermissionDenied:      "PERMISSION_DENIED",
	ErrCodeStepMismatch:          "STEP_MISMATCH",
	ErrCodeFlowComplete:          "FLOW_COMPLETE",
	ErrCodeNoPreviousStep:        "NO_PREVIOUS_STEP",
	ErrCodeUnknownFlow:           "UNKNOWN_FLOW",
	ErrCodeSessionNotFound:       "SESSION_NOT_FOUND",
	ErrCodeIFSCNotFound:          "IFSC_NOT_FOUND",
	ErrCodeApplicationNotFound:   "APPLICATION_NOT_FOUND",
	ErrCodeInvalidInput:          "INVALID_INPUT",
	ErrCodeStepGatePending:       "STEP_GATE_PENDING",
	ErrCodeDraftStoreFailed:      "DRAFT_STORE_FAILED",
	ErrCodeDatabaseInsertFailed:  "DATABASE_INSERT_FAILED",
	ErrCodeSearchQueryFailed:     "SEARCH_QUERY_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDraftStoreFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalServiceError:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeSearchTimeout,
		ErrCodeTimeoutError:
		return 2

	case ErrCodeStepGatePending:
		return 5

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "OTP"):
		return "VERIFICATION"
	case strings.Contains(codeStr, "PERMISSION"):
		return "PERMISSION"
	case strings.Contains(codeStr, "STEP") || strings.Contains(codeStr, "FLOW") || strings.Contains(codeStr, "SESSION"):
		return "FLOW"
	case strings.Contains(codeStr, "DRAFT"):
		return "STORAGE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
