// Package emi computes equated monthly instalments for the personal loan
// product.
package emi

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTerms is returned for non-positive or non-finite terms and for
// terms whose payment overflows.
var ErrInvalidTerms = errors.New("INVALID_LOAN_TERMS")

// DefaultFeePercent is the processing fee charged on the principal.
const DefaultFeePercent = 2.0

// Terms are the inputs of one calculation. AnnualRate is a percentage.
type Terms struct {
	Principal    float64 `json:"principal"`
	AnnualRate   float64 `json:"annualRate"`
	TenureMonths int     `json:"tenureMonths"`
}

// Result holds derived values. Only PaymentRounded is rounded; totals come
// from the unrounded payment.
type Result struct {
	Terms
	MonthlyRate    float64 `json:"monthlyRate"`
	Payment        float64 `json:"payment"`
	PaymentRounded float64 `json:"paymentRounded"`
	TotalPayable   float64 `json:"totalPayable"`
	TotalInterest  float64 `json:"totalInterest"`
	ProcessingFee  float64 `json:"processingFee"`
	NetDisbursal   float64 `json:"netDisbursal"`
}

// Calculate applies P·r·(1+r)^N / ((1+r)^N − 1) with r = R/1200.
func Calculate(t Terms, feePercent float64) (Result, error) {
	r := t.AnnualRate / 1200
	if !finite(t.Principal) || !finite(r) || t.Principal <= 0 || t.TenureMonths <= 0 || r <= 0 {
		return Result{}, fmt.Errorf("%w: principal=%v rate=%v tenure=%d", ErrInvalidTerms, t.Principal, t.AnnualRate, t.TenureMonths)
	}

	growth := math.Pow(1+r, float64(t.TenureMonths))
	payment := t.Principal * r * growth / (growth - 1)
	if !finite(payment) {
		return Result{}, fmt.Errorf("%w: payment overflows for rate=%v tenure=%d", ErrInvalidTerms, t.AnnualRate, t.TenureMonths)
	}
	total := payment * float64(t.TenureMonths)
	fee := ProcessingFee(t.Principal, feePercent)

	return Result{
		Terms:          t,
		MonthlyRate:    r,
		Payment:        payment,
		PaymentRounded: math.Round(payment),
		TotalPayable:   total,
		TotalInterest:  total - t.Principal,
		ProcessingFee:  fee,
		NetDisbursal:   t.Principal - fee,
	}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ProcessingFee is round(P · feePercent / 100).
func ProcessingFee(principal, feePercent float64) float64 {
	return math.Round(principal * feePercent / 100)
}
