package draft

import (
	"fmt"
	"strconv"
	"strings"

	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/models"
)

// DefaultRegistry knows every funnel key. Current versions:
//
//	v1  all keys, envelope introduced
//	v2  aadhaar stored without spaces; customise slider values stored as numbers
func DefaultRegistry() *Registry {
	r := NewRegistry()

	str := validation.Property{Type: "string"}
	num := validation.Property{Type: "number"}

	register := func(key string, version int, props map[string]validation.Property, migrations map[int]Migration) {
		schema := Schema{Version: version, Migrations: migrations}
		if props != nil {
			// Unknown fields are allowed: later UI versions add fields freely.
			doc, err := validation.JSONSchema{Type: "object", Properties: props, AdditionalProperties: true}.ToMap()
			if err == nil {
				schema.JSONSchema = doc
			}
		}
		r.Register(key, schema)
	}

	register(models.KeyLoanMobile, 1, map[string]validation.Property{"mobile": str}, nil)
	register(models.KeyLoanAadhaar, 2, map[string]validation.Property{"aadhaar": str}, map[int]Migration{
		1: stripAadhaarSpaces,
	})
	register(models.KeyLoanPAN, 1, map[string]validation.Property{"pan": str, "name": str, "dob": str}, nil)
	register(models.KeyLoanPersonalReview, 1, map[string]validation.Property{
		"name": str, "dob": str, "address": str, "gender": str, "mobile": str, "aadhaar": str,
	}, nil)
	register(models.KeyLoanBasicDetails, 1, map[string]validation.Property{
		"email": str, "occupation": str, "companyName": str, "annualIncome": str, "motherName": str,
	}, nil)
	register(models.KeyLoanEligibility, 1, map[string]validation.Property{
		"amount": num, "minEMI": num, "interestRate": num, "maxTenure": num, "creditScore": num,
	}, nil)
	register(models.KeyLoanCustomise, 2, map[string]validation.Property{
		"loanAmount": num, "tenure": num, "date": str,
	}, map[int]Migration{
		1: numericFields("loanAmount", "tenure"),
	})
	register(models.KeyLoanBankDetails, 1, map[string]validation.Property{
		"ifscCode": str, "accountHolderName": str, "accountNumber": str,
		"accountType": str, "branchName": str, "bankName": str,
	}, nil)
	register(models.KeyLoanFinalSanction, 1, map[string]validation.Property{
		"loanId": str, "amount": num, "interestRate": num, "tenure": num,
		"emi": num, "processingFee": num, "netDisbursal": num, "revised": {Type: "boolean"},
	}, nil)
	register(models.KeySession, 1, map[string]validation.Property{
		"applicationId": str, "flow": str, "current": str,
	}, nil)

	for _, key := range models.OnboardingDraftKeys() {
		register(key, 1, nil, nil)
	}
	return r
}

func stripAadhaarSpaces(d Draft) (Draft, error) {
	out := d.Clone()
	if s, ok := out["aadhaar"].(string); ok {
		out["aadhaar"] = strings.ReplaceAll(s, " ", "")
	}
	return out, nil
}

func numericFields(fields ...string) Migration {
	return func(d Draft) (Draft, error) {
		out := d.Clone()
		for _, f := range fields {
			s, ok := out[f].(string)
			if !ok {
				continue
			}
			if strings.TrimSpace(s) == "" {
				delete(out, f)
				continue
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f, err)
			}
			out[f] = n
		}
		return out, nil
	}
}
