// internal/models/keys.go
package models

// Flow names.
const (
	FlowLoan       = "loan"
	FlowOnboarding = "onboarding"
)

// Loan draft keys, one blob per key inside an application scope.
const (
	KeyLoanMobile         = "loan_application_mobile"
	KeyLoanAadhaar        = "loan_application_aadhaar"
	KeyLoanPAN            = "loan_application_pan"
	KeyLoanPersonalReview = "loan_application_personal_review"
	KeyLoanBasicDetails   = "loan_application_basic_details"
	KeyLoanEligibility    = "loan_application_eligibility"
	KeyLoanCustomise      = "loan_application_customise"
	KeyLoanBankDetails    = "loan_application_bank_details"
	KeyLoanFinalSanction  = "loan_application_final_sanction"

	// Written by later product stages; cleared with the rest on success.
	KeyLoanBankStatement = "loan_application_bank_statement"
	KeyLoanKFSAgreement  = "loan_application_kfs_agreement"
	KeyLoanEMandate      = "loan_application_emandate"
	KeyLoanESign         = "loan_application_esign"
)

// KeySession is reserved for the funnel session inside a scope.
const KeySession = "funnel_session"

// LoanDraftKeys lists every loan key cleared when disbursal succeeds.
func LoanDraftKeys() []string {
	return []string{
		KeyLoanMobile,
		KeyLoanAadhaar,
		KeyLoanPAN,
		KeyLoanPersonalReview,
		KeyLoanBasicDetails,
		KeyLoanEligibility,
		KeyLoanCustomise,
		KeyLoanBankDetails,
		KeyLoanFinalSanction,
		KeyLoanBankStatement,
		KeyLoanKFSAgreement,
		KeyLoanEMandate,
		KeyLoanESign,
	}
}

// OnboardingKey returns the draft key of an onboarding step.
func OnboardingKey(step string) string {
	return "onboarding_application_" + step
}

// Onboarding steps that carry a draft.
var onboardingDraftSteps = []string{
	"mobile", "aadhaar", "pan", "dob", "address", "basic_details", "product_selection", "nominee",
}

// OnboardingDraftKeys lists every onboarding key cleared on success.
func OnboardingDraftKeys() []string {
	keys := make([]string, 0, len(onboardingDraftSteps))
	for _, s := range onboardingDraftSteps {
		keys = append(keys, OnboardingKey(s))
	}
	return keys
}
