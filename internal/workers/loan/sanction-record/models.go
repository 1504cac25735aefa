package sanctionrecord

import "time"

// AuditEventSanctioned is the audit_log event written with the row.
const AuditEventSanctioned = "loan.sanctioned"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	LoanID           string    `json:"loanId"`
	RecordID         string    `json:"recordId"`
	Status           string    `json:"status"`
	SanctionedAmount float64   `json:"sanctionedAmount"`
	EMI              float64   `json:"emi"`
	SanctionedAt     time.Time `json:"sanctionedAt"`
	AlreadyRecorded  bool      `json:"alreadyRecorded"`
	LetterSent       bool      `json:"letterSent"`
}
