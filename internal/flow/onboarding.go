package flow

import (
	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/permission"
)

// Onboarding step identifiers not shared with the loan flow.
const (
	StepOTP              = "otp"
	StepDOB              = "dob"
	StepAddress          = "address"
	StepProductSelection = "product-selection"
	StepNominee          = "nominee"
	StepSuccess          = "success"
)

func OnboardingFlow(cfg Config) (*Definition, error) {
	products := cfg.OnboardingProducts
	if len(products) == 0 {
		products = DefaultConfig().OnboardingProducts
	}

	return NewDefinition(models.FlowOnboarding,
		&Step{
			ID:        StepMobile,
			DraftKey:  models.OnboardingKey("mobile"),
			Fields:    []string{"mobile"},
			Normalize: map[string]func(string) string{"mobile": validation.NormalizeMobile},
			Validate:  formRule(func() interface{} { return &models.MobileForm{} }),
		},
		&Step{
			ID:        StepAadhaar,
			DraftKey:  models.OnboardingKey("aadhaar"),
			Fields:    []string{"aadhaar"},
			Normalize: map[string]func(string) string{"aadhaar": validation.NormalizeAadhaar},
			Validate:  formRule(func() interface{} { return &models.AadhaarForm{} }),
		},
		&Step{ID: StepOTP, Gate: Gate{Kind: GateOTP}},
		&Step{
			ID:        StepPAN,
			DraftKey:  models.OnboardingKey("pan"),
			Fields:    []string{"pan"},
			Normalize: map[string]func(string) string{"pan": validation.NormalizePAN},
			Validate:  formRule(func() interface{} { return &models.OnboardingPANForm{} }),
		},
		&Step{
			ID:        StepDOB,
			DraftKey:  models.OnboardingKey("dob"),
			Fields:    []string{"dob"},
			Normalize: map[string]func(string) string{"dob": validation.NormalizeDOB},
			Validate:  formRule(func() interface{} { return &models.OnboardingDOBForm{} }),
		},
		&Step{
			ID:       StepAddress,
			DraftKey: models.OnboardingKey("address"),
			Fields:   []string{"line1", "line2", "city", "state", "pincode"},
			Normalize: map[string]func(string) string{
				"line1":   trim,
				"line2":   trim,
				"city":    validation.NormalizeName,
				"state":   validation.NormalizeName,
				"pincode": trim,
			},
			Validate: formRule(func() interface{} { return &models.AddressForm{} }),
		},
		&Step{
			ID:       StepBasicDetails,
			DraftKey: models.OnboardingKey("basic_details"),
			Fields:   []string{"fullName", "email"},
			Normalize: map[string]func(string) string{
				"fullName": validation.NormalizeName,
				"email":    trim,
			},
			Validate: formRule(func() interface{} { return &models.OnboardingBasicDetailsForm{} }),
		},
		&Step{
			ID:        StepProductSelection,
			DraftKey:  models.OnboardingKey("product_selection"),
			Fields:    []string{"productId"},
			Normalize: map[string]func(string) string{"productId": trim},
			Validate: all(
				formRule(func() interface{} { return &models.ProductSelectionForm{} }),
				catalogRule("productId", products),
			),
		},
		&Step{
			ID:       StepNominee,
			DraftKey: models.OnboardingKey("nominee"),
			Fields:   []string{"name", "relationship"},
			Normalize: map[string]func(string) string{
				"name":         validation.NormalizeName,
				"relationship": trim,
			},
			Validate: formRule(func() interface{} { return &models.NomineeForm{} }),
		},
		&Step{ID: StepKYCPrompt, Gate: Gate{Kind: GatePermission, Permissions: permission.KYCKinds}},
		&Step{ID: StepSuccess, Terminal: true, ClearOnEnter: models.OnboardingDraftKeys()},
	)
}
