package emicalculate

import "loan-funnel-workers/internal/emi"

// Product names accepted in Input.Product.
const (
	ProductPersonalLoan = "personal-loan"
	ProductCalculator   = "calculator"
)

// Input terms. AnnualRate defaults to the product rate.
type Input struct {
	Principal       float64 `json:"principal"`
	TenureMonths    int     `json:"tenureMonths"`
	AnnualRate      float64 `json:"annualRate,omitempty"`
	Product         string  `json:"product,omitempty"`
	IncludeSchedule bool    `json:"includeSchedule,omitempty"`
}

type Output struct {
	MonthlyEMI    float64           `json:"monthlyEmi"`
	ExactEMI      float64           `json:"exactEmi"`
	AnnualRate    float64           `json:"annualRate"`
	TotalPayable  float64           `json:"totalPayable"`
	TotalInterest float64           `json:"totalInterest"`
	ProcessingFee float64           `json:"processingFee"`
	NetDisbursal  float64           `json:"netDisbursal"`
	Schedule      []emi.Installment `json:"schedule,omitempty"`
}
