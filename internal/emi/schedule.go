package emi

import "math"

// Installment is one row of an amortization schedule.
type Installment struct {
	Month     int     `json:"month"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}

// Schedule splits each payment of r into interest and principal. The last
// row absorbs float drift so the closing balance is zero.
func Schedule(r Result) []Installment {
	if r.TenureMonths <= 0 || r.Payment <= 0 {
		return nil
	}

	rows := make([]Installment, 0, r.TenureMonths)
	balance := r.Principal
	for m := 1; m <= r.TenureMonths; m++ {
		interest := balance * r.MonthlyRate
		principal := r.Payment - interest
		balance -= principal
		if m == r.TenureMonths || math.Abs(balance) < 1e-6 {
			principal += balance
			balance = 0
		}
		rows = append(rows, Installment{
			Month:     m,
			Payment:   r.Payment,
			Principal: principal,
			Interest:  interest,
			Balance:   balance,
		})
	}
	return rows
}
