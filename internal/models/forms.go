// internal/models/forms.go
package models

// Typed step forms. Drafts are stored as generic maps; these types give
// each step its field names and validation rules.

type MobileForm struct {
	Mobile string `json:"mobile" validate:"mobile"`
}

type AadhaarForm struct {
	Aadhaar string `json:"aadhaar" validate:"aadhaar"`
}

type PANForm struct {
	PAN  string `json:"pan" validate:"pan"`
	Name string `json:"name" validate:"notblank" msg:"Please enter your name as per PAN"`
	DOB  string `json:"dob" validate:"dob"`
}

// PersonalReview is seeded from the identity checks and shown read-only.
type PersonalReview struct {
	Name    string `json:"name"`
	DOB     string `json:"dob"`
	Address string `json:"address"`
	Gender  string `json:"gender"`
	Mobile  string `json:"mobile"`
}

type BasicDetailsForm struct {
	Email        string `json:"email" validate:"email_simple"`
	Occupation   string `json:"occupation" validate:"notblank" msg:"Please select your occupation"`
	CompanyName  string `json:"companyName" validate:"notblank" msg:"Please enter your company name"`
	AnnualIncome string `json:"annualIncome" validate:"notblank" msg:"Please enter your annual income"`
	MotherName   string `json:"motherName" validate:"notblank" msg:"Please enter your mother's name"`
}

// EligibilityOffer is the pre-approved offer seeded on the eligibility step.
type EligibilityOffer struct {
	Amount       float64 `json:"amount"`
	MinEMI       float64 `json:"minEMI"`
	InterestRate float64 `json:"interestRate"`
	MaxTenure    int     `json:"maxTenure"`
	CreditScore  int     `json:"creditScore"`
}

type CustomiseForm struct {
	LoanAmount float64 `json:"loanAmount"`
	Tenure     int     `json:"tenure"`
	Date       string  `json:"date,omitempty"`
}

type BankDetailsForm struct {
	IFSCCode          string `json:"ifscCode" validate:"ifsc"`
	AccountHolderName string `json:"accountHolderName" validate:"holder_name"`
	AccountNumber     string `json:"accountNumber" validate:"account_number"`
	AccountType       string `json:"accountType" validate:"oneof=savings current" msg:"Please select account type"`
	BranchName        string `json:"branchName" validate:"notblank" msg:"Please enter branch name"`
	BankName          string `json:"bankName" validate:"notblank" msg:"Please enter bank name"`
}

// Onboarding forms.

type OnboardingPANForm struct {
	PAN string `json:"pan" validate:"pan"`
}

type OnboardingDOBForm struct {
	DOB string `json:"dob" validate:"dob"`
}

type AddressForm struct {
	Line1   string `json:"line1" validate:"notblank" msg:"Please enter your address"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city" validate:"notblank" msg:"Please enter your city"`
	State   string `json:"state" validate:"notblank" msg:"Please enter your state"`
	Pincode string `json:"pincode" validate:"pincode"`
}

type OnboardingBasicDetailsForm struct {
	FullName string `json:"fullName" validate:"notblank" msg:"Please enter your full name"`
	Email    string `json:"email" validate:"email_simple"`
}

type ProductSelectionForm struct {
	ProductID string `json:"productId" validate:"notblank" msg:"Please select a product"`
}

type NomineeForm struct {
	Name         string `json:"name" validate:"notblank" msg:"Please enter the nominee's name"`
	Relationship string `json:"relationship" validate:"notblank" msg:"Please select the relationship"`
}
