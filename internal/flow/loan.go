package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/permission"
)

// Loan step identifiers.
const (
	StepMobile         = "mobile"
	StepMobileOTP      = "mobile-otp"
	StepAadhaar        = "aadhaar"
	StepAadhaarOTP     = "aadhaar-otp"
	StepPAN            = "pan"
	StepPersonalReview = "personal-details-review"
	StepBasicDetails   = "basic-details"
	StepEligibility    = "eligibility"
	StepCustomise      = "customise"
	StepBankDetails    = "bank-details"
	StepVideoKYC       = "video-kyc"
	StepKYCPrompt      = "kyc-prompt"
	StepKYCSuccess     = "kyc-success"
	StepFinalSanction  = "final-sanction"
	StepDisbursal      = "disbursal-processing"
	StepDisbursed      = "disbursal-success"
	StepDashboard      = "dashboard"
)

// Values shown on the personal details review until a real KYC source
// fills them.
var personalReviewDefaults = draft.Draft{
	"name":    "Rajesh Kumar",
	"dob":     "15 Aug 1990",
	"gender":  "Male",
	"mobile":  "+91 83XXX XXXXX",
	"address": "Flat 304, Viman Nagar, Pune, Maharashtra - 411014",
}

func LoanFlow(cfg Config) (*Definition, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := cfg.Product

	return NewDefinition(models.FlowLoan,
		&Step{
			ID:        StepMobile,
			DraftKey:  models.KeyLoanMobile,
			Fields:    []string{"mobile"},
			Normalize: map[string]func(string) string{"mobile": validation.NormalizeMobile},
			Validate:  formRule(func() interface{} { return &models.MobileForm{} }),
		},
		&Step{ID: StepMobileOTP, Gate: Gate{Kind: GateOTP}},
		&Step{
			ID:        StepAadhaar,
			DraftKey:  models.KeyLoanAadhaar,
			Fields:    []string{"aadhaar"},
			Normalize: map[string]func(string) string{"aadhaar": validation.NormalizeAadhaar},
			Validate:  formRule(func() interface{} { return &models.AadhaarForm{} }),
		},
		&Step{ID: StepAadhaarOTP, Gate: Gate{Kind: GateOTP}},
		&Step{
			ID:       StepPAN,
			DraftKey: models.KeyLoanPAN,
			Fields:   []string{"pan", "name", "dob"},
			Normalize: map[string]func(string) string{
				"pan":  validation.NormalizePAN,
				"name": validation.NormalizeName,
				"dob":  validation.NormalizeDOB,
			},
			Validate: formRule(func() interface{} { return &models.PANForm{} }),
		},
		&Step{
			ID:       StepPersonalReview,
			DraftKey: models.KeyLoanPersonalReview,
			Defaults: personalReviewDefaults,
			Seed:     seedPersonalReview,
		},
		&Step{
			ID:       StepBasicDetails,
			DraftKey: models.KeyLoanBasicDetails,
			Fields:   []string{"email", "occupation", "companyName", "annualIncome", "motherName"},
			Normalize: map[string]func(string) string{
				"email":        trim,
				"occupation":   trim,
				"companyName":  validation.NormalizeName,
				"annualIncome": trim,
				"motherName":   validation.NormalizeName,
			},
			Validate: formRule(func() interface{} { return &models.BasicDetailsForm{} }),
		},
		&Step{
			ID:       StepEligibility,
			DraftKey: models.KeyLoanEligibility,
			Seed: func(context.Context, Loader) (draft.Draft, error) {
				return draft.FromStruct(cfg.Eligibility)
			},
		},
		&Step{
			ID:       StepCustomise,
			DraftKey: models.KeyLoanCustomise,
			Fields:   []string{"loanAmount", "tenure"},
			Numbers:  []string{"loanAmount", "tenure"},
			Defaults: draft.Draft{"loanAmount": p.DefaultAmount, "tenure": float64(p.DefaultTenure)},
			Seed: func(context.Context, Loader) (draft.Draft, error) {
				return draft.Draft{"date": cfg.Now().UTC().Format(time.RFC3339)}, nil
			},
			Validate: termsRule(p),
		},
		&Step{
			ID:       StepBankDetails,
			DraftKey: models.KeyLoanBankDetails,
			Fields:   []string{"ifscCode", "accountHolderName", "accountNumber", "accountType", "branchName", "bankName"},
			Normalize: map[string]func(string) string{
				"ifscCode":          validation.NormalizeIFSC,
				"accountHolderName": validation.NormalizeName,
				"accountNumber":     trim,
				"accountType":       trim,
				"branchName":        trim,
				"bankName":          trim,
			},
			Validate: formRule(func() interface{} { return &models.BankDetailsForm{} }),
		},
		&Step{ID: StepVideoKYC, Gate: Gate{Kind: GateCountdown, Countdown: cfg.VideoKYC}},
		&Step{ID: StepKYCPrompt, Gate: Gate{Kind: GatePermission, Permissions: permission.KYCKinds}},
		&Step{ID: StepKYCSuccess, Gate: Gate{Kind: GateCountdown, Countdown: cfg.KYCSuccess}},
		&Step{
			ID:       StepFinalSanction,
			DraftKey: models.KeyLoanFinalSanction,
			Seed:     seedSanction(cfg),
		},
		&Step{ID: StepDisbursal, Gate: Gate{Kind: GateCountdown, Countdown: cfg.Disbursal}},
		&Step{ID: StepDisbursed, ClearOnEnter: models.LoanDraftKeys()},
		&Step{ID: StepDashboard, Terminal: true},
	)
}

// loadOptional treats a corrupt draft as missing.
func loadOptional(ctx context.Context, load Loader, key string) (draft.Draft, bool, error) {
	d, ok, err := load(ctx, key)
	if errors.Is(err, draft.ErrCorruptDraft) {
		return nil, false, nil
	}
	return d, ok, err
}

func seedPersonalReview(ctx context.Context, load Loader) (draft.Draft, error) {
	d := personalReviewDefaults.Clone()

	pan, ok, err := loadOptional(ctx, load, models.KeyLoanPAN)
	if err != nil {
		return nil, err
	}
	if ok {
		if name := pan.String("name"); name != "" {
			d["name"] = name
		}
		if dob := pan.String("dob"); dob != "" {
			d["dob"] = dob
		}
	}

	aadhaar, ok, err := loadOptional(ctx, load, models.KeyLoanAadhaar)
	if err != nil {
		return nil, err
	}
	if ok && validation.IsValidAadhaar(aadhaar.String("aadhaar")) {
		d["aadhaar"] = MaskAadhaar(aadhaar.String("aadhaar"))
	}

	mobile, ok, err := loadOptional(ctx, load, models.KeyLoanMobile)
	if err != nil {
		return nil, err
	}
	if ok && validation.IsValidMobile(mobile.String("mobile")) {
		d["mobile"] = MaskMobile(mobile.String("mobile"))
	}
	return d, nil
}

// seedSanction prices the customised terms at the sanction rate.
func seedSanction(cfg Config) func(context.Context, Loader) (draft.Draft, error) {
	return func(ctx context.Context, load Loader) (draft.Draft, error) {
		terms := cfg.Product.DefaultTerms()
		custom, ok, err := loadOptional(ctx, load, models.KeyLoanCustomise)
		if err != nil {
			return nil, err
		}
		if ok {
			if a, ok := custom.Float("loanAmount"); ok {
				terms.Principal = a
			}
			if n, ok := custom.Int("tenure"); ok {
				terms.TenureMonths = n
			}
		}
		terms.AnnualRate = cfg.SanctionRate

		res, err := emi.Calculate(terms, cfg.Product.FeePercent)
		if err != nil {
			return nil, err
		}
		return draft.FromStruct(models.Sanction{
			LoanID:        models.NewLoanID(),
			Amount:        res.Principal,
			InterestRate:  res.AnnualRate,
			Tenure:        res.TenureMonths,
			EMI:           res.PaymentRounded,
			ProcessingFee: res.ProcessingFee,
			NetDisbursal:  res.NetDisbursal,
			Revised:       true,
		})
	}
}

// MaskAadhaar renders 123456789012 as "XXXX XXXX 9012".
func MaskAadhaar(a string) string {
	groups := strings.Split(validation.FormatAadhaar(a), " ")
	for i := 0; i < len(groups)-1; i++ {
		groups[i] = strings.Repeat("X", len(groups[i]))
	}
	return strings.Join(groups, " ")
}

// MaskMobile renders 9876543210 as "+91 98XXX XXXXX".
func MaskMobile(m string) string {
	if len(m) < 2 {
		return m
	}
	return "+91 " + m[:2] + "XXX XXXXX"
}
