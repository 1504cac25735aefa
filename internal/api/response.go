package api

import (
	"encoding/json"
	"net/http"

	commonerrors "loan-funnel-workers/internal/common/errors"
)

type apiError struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Fields   map[string]string      `json:"fields,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// writeJSON encodes payload before the status goes out, so an unencodable
// payload becomes a 500 instead of an empty body.
func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(apiError{Code: string(commonerrors.ErrCodeInternalError), Message: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Code: code, Message: message})
}

// statusFor maps error codes onto HTTP statuses.
var statusFor = map[commonerrors.ErrorCode]int{
	commonerrors.ErrCodeFieldValidationFailed: http.StatusUnprocessableEntity,
	commonerrors.ErrCodeInvalidLoanTerms:      http.StatusUnprocessableEntity,
	commonerrors.ErrCodeOTPMismatch:           http.StatusUnprocessableEntity,
	commonerrors.ErrCodeInvalidInput:          http.StatusUnprocessableEntity,
	commonerrors.ErrCodeStepGatePending:       http.StatusConflict,
	commonerrors.ErrCodeStepMismatch:          http.StatusConflict,
	commonerrors.ErrCodeFlowComplete:          http.StatusConflict,
	commonerrors.ErrCodeNoPreviousStep:        http.StatusConflict,
	commonerrors.ErrCodePermissionDenied:      http.StatusForbidden,
	commonerrors.ErrCodeSessionNotFound:       http.StatusNotFound,
	commonerrors.ErrCodeOTPChallengeNotFound:  http.StatusNotFound,
	commonerrors.ErrCodeUnknownFlow:           http.StatusNotFound,
	commonerrors.ErrCodeIFSCNotFound:          http.StatusNotFound,
	commonerrors.ErrCodeOTPResendTooSoon:      http.StatusTooManyRequests,
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := commonerrors.Normalize(err)

	status, ok := statusFor[stdErr.Code]
	if !ok {
		status = http.StatusInternalServerError
		if stdErr.Retryable {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("request failed", map[string]interface{}{
			"requestId": requestIDFromContext(r.Context()),
			"code":      stdErr.Code,
			"error":     stdErr.Details,
		})
	}

	body := apiError{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}
	meta := make(map[string]interface{}, len(stdErr.Metadata))
	for k, v := range stdErr.Metadata {
		if k == "fields" {
			if f, ok := v.(map[string]string); ok {
				body.Fields = f
			}
			continue
		}
		meta[k] = v
	}
	if len(meta) > 0 {
		body.Metadata = meta
	}
	writeJSON(w, status, body)
}
