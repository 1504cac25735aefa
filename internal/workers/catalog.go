// Package workers lists every job worker with the metadata published in
// the activity registry.
package workers

import (
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/config"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/validation"
	sessionstart "loan-funnel-workers/internal/workers/funnel/session-start"
	stepback "loan-funnel-workers/internal/workers/funnel/step-back"
	stepcontinue "loan-funnel-workers/internal/workers/funnel/step-continue"
	stepenter "loan-funnel-workers/internal/workers/funnel/step-enter"
	disbursalcomplete "loan-funnel-workers/internal/workers/loan/disbursal-complete"
	emicalculate "loan-funnel-workers/internal/workers/loan/emi-calculate"
	ifsclookup "loan-funnel-workers/internal/workers/loan/ifsc-lookup"
	sanctionrecord "loan-funnel-workers/internal/workers/loan/sanction-record"
	otpissue "loan-funnel-workers/internal/workers/verification/otp-issue"
	otpverify "loan-funnel-workers/internal/workers/verification/otp-verify"
	permissionreport "loan-funnel-workers/internal/workers/verification/permission-report"
	"loan-funnel-workers/pkg/registry"
)

// Entry describes one worker. ConfigKey is its key under workers in the
// application config.
type Entry struct {
	ConfigKey   string
	TaskType    string
	DisplayName string
	Description string
	Category    string
	Timeout     time.Duration
	Input       validation.JSONSchema
	Output      interface{}
	ErrorCodes  []commonerrors.ErrorCode
	Workflows   []string
}

var (
	loanOnly  = []string{"loan-funnel"}
	bothFlows = []string{"loan-funnel", "onboarding-funnel"}
)

var sessionErrors = []commonerrors.ErrorCode{
	commonerrors.ErrCodeSessionNotFound,
	commonerrors.ErrCodeDraftStoreFailed,
}

func Catalog() []Entry {
	return []Entry{
		{
			ConfigKey:   "funnel-session-start",
			TaskType:    sessionstart.TaskType,
			DisplayName: "Start Funnel Session",
			Description: "Opens or resumes an application session at the entry step of a flow",
			Category:    "funnel",
			Timeout:     sessionstart.DefaultConfig().Timeout,
			Input:       sessionstart.GetInputSchema(),
			Output:      sessionstart.Output{},
			ErrorCodes:  []commonerrors.ErrorCode{commonerrors.ErrCodeUnknownFlow, commonerrors.ErrCodeInvalidInput, commonerrors.ErrCodeDraftStoreFailed},
			Workflows:   bothFlows,
		},
		{
			ConfigKey:   "funnel-step-enter",
			TaskType:    stepenter.TaskType,
			DisplayName: "Enter Funnel Step",
			Description: "Returns the current step with its stored draft and gate status",
			Category:    "funnel",
			Timeout:     stepenter.DefaultConfig().Timeout,
			Input:       stepenter.GetInputSchema(),
			Output:      stepenter.Output{},
			ErrorCodes:  sessionErrors,
			Workflows:   bothFlows,
		},
		{
			ConfigKey:   "funnel-step-continue",
			TaskType:    stepcontinue.TaskType,
			DisplayName: "Continue Funnel Step",
			Description: "Saves and validates step fields, checks the step gate and advances",
			Category:    "funnel",
			Timeout:     stepcontinue.DefaultConfig().Timeout,
			Input:       stepcontinue.GetInputSchema(),
			Output:      stepcontinue.Output{},
			ErrorCodes: append([]commonerrors.ErrorCode{
				commonerrors.ErrCodeFieldValidationFailed,
				commonerrors.ErrCodeStepGatePending,
				commonerrors.ErrCodeStepMismatch,
				commonerrors.ErrCodePermissionDenied,
				commonerrors.ErrCodeFlowComplete,
			}, sessionErrors...),
			Workflows: bothFlows,
		},
		{
			ConfigKey:   "funnel-step-back",
			TaskType:    stepback.TaskType,
			DisplayName: "Go Back One Step",
			Description: "Returns to the previously visited step, keeping its draft",
			Category:    "funnel",
			Timeout:     stepback.DefaultConfig().Timeout,
			Input:       stepback.GetInputSchema(),
			Output:      stepback.Output{},
			ErrorCodes: append([]commonerrors.ErrorCode{
				commonerrors.ErrCodeNoPreviousStep,
				commonerrors.ErrCodeStepMismatch,
				commonerrors.ErrCodeFlowComplete,
			}, sessionErrors...),
			Workflows: bothFlows,
		},
		{
			ConfigKey:   "verification-otp-issue",
			TaskType:    otpissue.TaskType,
			DisplayName: "Issue OTP",
			Description: "Issues or resends the verification code for the current OTP step",
			Category:    "verification",
			Timeout:     otpissue.DefaultConfig().Timeout,
			Input:       otpissue.GetInputSchema(),
			Output:      otpissue.Output{},
			ErrorCodes: append([]commonerrors.ErrorCode{
				commonerrors.ErrCodeOTPResendTooSoon,
				commonerrors.ErrCodeNotificationSendFailed,
				commonerrors.ErrCodeInvalidInput,
			}, sessionErrors...),
			Workflows: bothFlows,
		},
		{
			ConfigKey:   "verification-otp-verify",
			TaskType:    otpverify.TaskType,
			DisplayName: "Verify OTP",
			Description: "Checks a submitted code and satisfies the step gate on success",
			Category:    "verification",
			Timeout:     otpverify.DefaultConfig().Timeout,
			Input:       otpverify.GetInputSchema(),
			Output:      otpverify.Output{},
			ErrorCodes: append([]commonerrors.ErrorCode{
				commonerrors.ErrCodeOTPMismatch,
				commonerrors.ErrCodeOTPChallengeNotFound,
				commonerrors.ErrCodeInvalidInput,
			}, sessionErrors...),
			Workflows: bothFlows,
		},
		{
			ConfigKey:   "verification-permission-report",
			TaskType:    permissionreport.TaskType,
			DisplayName: "Report Device Permissions",
			Description: "Records camera, microphone and internet reports and folds them into one status",
			Category:    "verification",
			Timeout:     permissionreport.DefaultConfig().Timeout,
			Input:       permissionreport.GetInputSchema(),
			Output:      permissionreport.Output{},
			ErrorCodes:  append([]commonerrors.ErrorCode{commonerrors.ErrCodeInvalidInput}, sessionErrors...),
			Workflows:   bothFlows,
		},
		{
			ConfigKey:   "loan-emi-calculate",
			TaskType:    emicalculate.TaskType,
			DisplayName: "Calculate EMI",
			Description: "Computes the monthly instalment, fee and optional schedule for loan terms",
			Category:    "loan",
			Timeout:     emicalculate.DefaultConfig().Timeout,
			Input:       emicalculate.GetInputSchema(),
			Output:      emicalculate.Output{},
			ErrorCodes:  []commonerrors.ErrorCode{commonerrors.ErrCodeInvalidLoanTerms, commonerrors.ErrCodeInvalidInput},
			Workflows:   loanOnly,
		},
		{
			ConfigKey:   "loan-ifsc-lookup",
			TaskType:    ifsclookup.TaskType,
			DisplayName: "Look Up IFSC",
			Description: "Resolves bank and branch names for an IFSC and fills the bank-details draft",
			Category:    "loan",
			Timeout:     ifsclookup.DefaultConfig().Timeout,
			Input:       ifsclookup.GetInputSchema(),
			Output:      ifsclookup.Output{},
			ErrorCodes: []commonerrors.ErrorCode{
				commonerrors.ErrCodeFieldValidationFailed,
				commonerrors.ErrCodeIFSCNotFound,
				commonerrors.ErrCodeExternalServiceError,
				commonerrors.ErrCodeDraftStoreFailed,
				commonerrors.ErrCodeSessionNotFound,
			},
			Workflows: loanOnly,
		},
		{
			ConfigKey:   "loan-sanction-record",
			TaskType:    sanctionrecord.TaskType,
			DisplayName: "Record Sanction",
			Description: "Writes the sanctioned application to Postgres, indexes it and emails the sanction letter",
			Category:    "loan",
			Timeout:     sanctionrecord.DefaultConfig().Timeout,
			Input:       sanctionrecord.GetInputSchema(),
			Output:      sanctionrecord.Output{},
			ErrorCodes: []commonerrors.ErrorCode{
				commonerrors.ErrCodeApplicationNotFound,
				commonerrors.ErrCodeDraftCorrupt,
				commonerrors.ErrCodeDatabaseInsertFailed,
				commonerrors.ErrCodeQueryExecutionFailed,
				commonerrors.ErrCodeDraftStoreFailed,
			},
			Workflows: loanOnly,
		},
		{
			ConfigKey:   "loan-disbursal-complete",
			TaskType:    disbursalcomplete.TaskType,
			DisplayName: "Complete Disbursal",
			Description: "Marks the application disbursed, writes the audit event and clears its drafts",
			Category:    "loan",
			Timeout:     disbursalcomplete.DefaultConfig().Timeout,
			Input:       disbursalcomplete.GetInputSchema(),
			Output:      disbursalcomplete.Output{},
			ErrorCodes: []commonerrors.ErrorCode{
				commonerrors.ErrCodeApplicationNotFound,
				commonerrors.ErrCodeQueryExecutionFailed,
				commonerrors.ErrCodeDatabaseInsertFailed,
				commonerrors.ErrCodeDraftStoreFailed,
			},
			Workflows: loanOnly,
		},
	}
}

// Activity renders e as a registry entry. retries is the configured retry
// budget of the worker.
func (e Entry) Activity(retries int) (registry.Activity, error) {
	input, err := e.Input.ToMap()
	if err != nil {
		return registry.Activity{}, fmt.Errorf("input schema of %s: %w", e.TaskType, err)
	}
	codes := make([]string, 0, len(e.ErrorCodes))
	for _, c := range e.ErrorCodes {
		codes = append(codes, string(c))
	}
	return registry.Activity{
		ID:                   e.ConfigKey,
		DisplayName:          e.DisplayName,
		Description:          e.Description,
		Category:             e.Category,
		Version:              "1.0.0",
		TaskType:             e.TaskType,
		ImplementationStatus: registry.StatusCompleted,
		InputSchema:          input,
		OutputSchema:         registry.OutputSchema(e.Output),
		ErrorCodes:           codes,
		Timeout:              e.Timeout.String(),
		Retries:              retries,
		Workflows:            e.Workflows,
		Tags:                 []string{e.Category},
	}, nil
}

// defaultRetries applies when a worker sets no max_retries.
const defaultRetries = 3

// Activities renders the whole catalog with retry budgets from cfg. cfg may
// be nil.
func Activities(cfg *config.Config) ([]registry.Activity, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	entries := Catalog()
	out := make([]registry.Activity, 0, len(entries))
	for _, e := range entries {
		retries := config.GetWorkerConfig(cfg, e.ConfigKey).MaxRetries
		if retries <= 0 {
			retries = defaultRetries
		}
		a, err := e.Activity(retries)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
