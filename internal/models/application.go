// internal/models/application.go
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Application status values stored in loan_applications.status.
const (
	StatusSanctioned = "sanctioned"
	StatusDisbursed  = "disbursed"
)

// Sanction is the final offer written on the final-sanction step.
type Sanction struct {
	LoanID        string  `json:"loanId"`
	Amount        float64 `json:"amount"`
	InterestRate  float64 `json:"interestRate"`
	Tenure        int     `json:"tenure"`
	EMI           float64 `json:"emi"`
	ProcessingFee float64 `json:"processingFee"`
	NetDisbursal  float64 `json:"netDisbursal"`
	Revised       bool    `json:"revised"`
}

// LoanApplicationRecord is the audit row for a sanctioned application.
type LoanApplicationRecord struct {
	ID               string     `json:"id"`
	ApplicationID    string     `json:"applicationId"`
	LoanID           string     `json:"loanId"`
	Mobile           string     `json:"mobile"`
	FullName         string     `json:"fullName"`
	Email            string     `json:"email,omitempty"`
	Principal        float64    `json:"principal"`
	AnnualRate       float64    `json:"annualRate"`
	TenureMonths     int        `json:"tenureMonths"`
	EMI              float64    `json:"emi"`
	ProcessingFee    float64    `json:"processingFee"`
	NetDisbursal     float64    `json:"netDisbursal"`
	BankIFSC         string     `json:"bankIfsc"`
	BankAccountLast4 string     `json:"bankAccountLast4"`
	Status           string     `json:"status"`
	SanctionedAt     time.Time  `json:"sanctionedAt"`
	DisbursedAt      *time.Time `json:"disbursedAt,omitempty"`
}

// AuditEvent is one row of audit_log.
type AuditEvent struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	Event         string                 `json:"event"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// NewLoanID returns "PL" followed by nine uppercase base-36 characters.
func NewLoanID() string {
	id := uuid.New()
	var n uint64
	for _, b := range id[:8] {
		n = n<<8 | uint64(b)
	}
	s := strings.ToUpper(strconv.FormatUint(n, 36))
	for len(s) < 9 {
		s = "0" + s
	}
	return "PL" + s[len(s)-9:]
}

// NewApplicationID returns a fresh application scope identifier.
func NewApplicationID() string {
	return uuid.NewString()
}

// Last4 masks all but the last four characters of an account number.
func Last4(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}
