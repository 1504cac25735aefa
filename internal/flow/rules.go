package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/models"
)

// Config holds the product values the flows are built from.
type Config struct {
	Product            emi.Product
	Eligibility        models.EligibilityOffer
	SanctionRate       float64
	VideoKYC           time.Duration
	KYCSuccess         time.Duration
	Disbursal          time.Duration
	OnboardingProducts []string
	Now                func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Product: emi.PersonalLoan,
		Eligibility: models.EligibilityOffer{
			Amount:       1000000,
			MinEMI:       33333,
			InterestRate: 13,
			MaxTenure:    30,
			CreditScore:  780,
		},
		SanctionRate:       10.99,
		VideoKYC:           20 * time.Second,
		KYCSuccess:         3 * time.Second,
		Disbursal:          8 * time.Second,
		OnboardingProducts: []string{"savings", "current", "salary"},
		Now:                time.Now,
	}
}

// ConfigFromApp maps the funnel section of the application config.
func ConfigFromApp(cfg *config.Config) Config {
	f := cfg.Funnel
	return Config{
		Product: emi.Product{
			MinAmount:     f.Product.MinAmount,
			MaxAmount:     f.Product.MaxAmount,
			AmountStep:    f.Product.AmountStep,
			MinTenure:     f.Product.MinTenure,
			MaxTenure:     f.Product.MaxTenure,
			TenureStep:    f.Product.TenureStep,
			AnnualRate:    f.Product.AnnualRate,
			FeePercent:    f.Product.FeePercent,
			DefaultAmount: f.Product.DefaultAmount,
			DefaultTenure: f.Product.DefaultTenure,
		},
		Eligibility: models.EligibilityOffer{
			Amount:       f.Eligibility.Amount,
			MinEMI:       f.Eligibility.MinEMI,
			InterestRate: f.Eligibility.InterestRate,
			MaxTenure:    f.Eligibility.MaxTenure,
			CreditScore:  f.Eligibility.CreditScore,
		},
		SanctionRate:       f.Sanction.AnnualRate,
		VideoKYC:           config.GetDuration(f.Countdowns.VideoKYC),
		KYCSuccess:         config.GetDuration(f.Countdowns.KYCSuccess),
		Disbursal:          config.GetDuration(f.Countdowns.Disbursal),
		OnboardingProducts: f.OnboardingProducts,
		Now:                time.Now,
	}
}

// formRule validates a draft through a typed form's struct tags.
func formRule(newForm func() interface{}) func(draft.Draft) validation.FieldErrors {
	return func(d draft.Draft) validation.FieldErrors {
		form := newForm()
		if err := d.Bind(form); err != nil {
			return validation.FieldErrors{"form": "Invalid value"}
		}
		fe, err := validation.Struct(form)
		if err != nil {
			return validation.FieldErrors{"form": err.Error()}
		}
		return fe
	}
}

// termsRule checks the customise sliders against the product.
func termsRule(p emi.Product) func(draft.Draft) validation.FieldErrors {
	return func(d draft.Draft) validation.FieldErrors {
		amount, ok := d.Float("loanAmount")
		if !ok {
			return validation.FieldErrors{"loanAmount": "Please choose a loan amount"}
		}
		tenure, ok := d.Int("tenure")
		if !ok {
			return validation.FieldErrors{"tenure": "Please choose a tenure"}
		}

		err := p.Check(emi.Terms{Principal: amount, AnnualRate: p.AnnualRate, TenureMonths: tenure})
		if err == nil {
			return nil
		}
		if !errors.Is(err, emi.ErrInvalidTerms) {
			return validation.FieldErrors{"loanAmount": err.Error()}
		}
		if !p.AmountOK(amount) {
			return validation.FieldErrors{"loanAmount": fmt.Sprintf("Choose an amount between %.0f and %.0f in steps of %.0f", p.MinAmount, p.MaxAmount, p.AmountStep)}
		}
		return validation.FieldErrors{"tenure": fmt.Sprintf("Choose a tenure between %d and %d months in steps of %d", p.MinTenure, p.MaxTenure, p.TenureStep)}
	}
}

// catalogRule requires field to name one of the products.
func catalogRule(field string, products []string) func(draft.Draft) validation.FieldErrors {
	return func(d draft.Draft) validation.FieldErrors {
		v := strings.TrimSpace(d.String(field))
		for _, p := range products {
			if v == p {
				return nil
			}
		}
		return validation.FieldErrors{field: "Please select a product"}
	}
}

// all runs rules in order and merges their errors, first message per field.
func all(rules ...func(draft.Draft) validation.FieldErrors) func(draft.Draft) validation.FieldErrors {
	return func(d draft.Draft) validation.FieldErrors {
		out := validation.FieldErrors{}
		for _, r := range rules {
			for k, v := range r(d) {
				if _, ok := out[k]; !ok {
					out[k] = v
				}
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
}

func trim(s string) string { return strings.TrimSpace(s) }
