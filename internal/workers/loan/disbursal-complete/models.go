package disbursalcomplete

import "time"

const AuditEventDisbursed = "loan.disbursed"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	LoanID           string    `json:"loanId"`
	Status           string    `json:"status"`
	DisbursedAt      time.Time `json:"disbursedAt"`
	AlreadyDisbursed bool      `json:"alreadyDisbursed"`
	ClearedKeys      []string  `json:"clearedKeys,omitempty"`
}
