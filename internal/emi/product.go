package emi

import (
	"fmt"
	"math"
)

// Product bounds the terms a customer may pick.
type Product struct {
	MinAmount     float64
	MaxAmount     float64
	AmountStep    float64
	MinTenure     int
	MaxTenure     int
	TenureStep    int
	AnnualRate    float64
	FeePercent    float64
	DefaultAmount float64
	DefaultTenure int
}

// PersonalLoan is the slider product on the customise step.
var PersonalLoan = Product{
	MinAmount:     50000,
	MaxAmount:     1000000,
	AmountStep:    10000,
	MinTenure:     6,
	MaxTenure:     60,
	TenureStep:    6,
	AnnualRate:    13,
	FeePercent:    DefaultFeePercent,
	DefaultAmount: 500000,
	DefaultTenure: 24,
}

// FreeCalculator is the standalone calculator with monthly tenure steps.
var FreeCalculator = Product{
	MinAmount:     50000,
	MaxAmount:     1000000,
	AmountStep:    10000,
	MinTenure:     6,
	MaxTenure:     60,
	TenureStep:    1,
	AnnualRate:    13,
	FeePercent:    DefaultFeePercent,
	DefaultAmount: 810000,
	DefaultTenure: 42,
}

// DefaultTerms returns the product defaults at the product rate.
func (p Product) DefaultTerms() Terms {
	return Terms{Principal: p.DefaultAmount, AnnualRate: p.AnnualRate, TenureMonths: p.DefaultTenure}
}

// Check rejects amounts and tenures outside the range or off the step grid.
func (p Product) Check(t Terms) error {
	if t.Principal < p.MinAmount || t.Principal > p.MaxAmount {
		return fmt.Errorf("%w: amount %.0f outside %.0f-%.0f", ErrInvalidTerms, t.Principal, p.MinAmount, p.MaxAmount)
	}
	if !p.AmountOnGrid(t.Principal) {
		return fmt.Errorf("%w: amount %.0f not a multiple of %.0f", ErrInvalidTerms, t.Principal, p.AmountStep)
	}
	if t.TenureMonths < p.MinTenure || t.TenureMonths > p.MaxTenure {
		return fmt.Errorf("%w: tenure %d outside %d-%d months", ErrInvalidTerms, t.TenureMonths, p.MinTenure, p.MaxTenure)
	}
	if p.TenureStep > 0 && (t.TenureMonths-p.MinTenure)%p.TenureStep != 0 {
		return fmt.Errorf("%w: tenure %d not in steps of %d", ErrInvalidTerms, t.TenureMonths, p.TenureStep)
	}
	return nil
}

// Quote checks t against the bounds and calculates it with the product fee.
func (p Product) Quote(t Terms) (Result, error) {
	if err := p.Check(t); err != nil {
		return Result{}, err
	}
	return Calculate(t, p.FeePercent)
}

// AmountOK reports whether amount is in range and on the step grid.
func (p Product) AmountOK(amount float64) bool {
	return amount >= p.MinAmount && amount <= p.MaxAmount && p.AmountOnGrid(amount)
}

// AmountOnGrid reports whether amount sits on a step counted from MinAmount.
func (p Product) AmountOnGrid(amount float64) bool {
	return p.AmountStep <= 0 || onGrid(amount-p.MinAmount, p.AmountStep)
}

func onGrid(v, step float64) bool {
	q := v / step
	return math.Abs(q-math.Round(q)) < 1e-9
}
