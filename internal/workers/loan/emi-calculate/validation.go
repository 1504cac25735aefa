package emicalculate

import "loan-funnel-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"principal", "tenureMonths"},
		Properties: map[string]validation.Property{
			"principal": {
				Type:    "number",
				Minimum: validation.FloatPtr(1),
			},
			"tenureMonths": {
				Type:    "integer",
				Minimum: validation.FloatPtr(1),
				Maximum: validation.FloatPtr(360),
			},
			"annualRate": {
				Type:        "number",
				Description: "Percent per year; product rate when absent",
				Minimum:     validation.FloatPtr(0),
				Maximum:     validation.FloatPtr(60),
			},
			"product": {
				Type:    "string",
				Enum:    []string{ProductPersonalLoan, ProductCalculator},
				Default: ProductPersonalLoan,
			},
			"includeSchedule": {
				Type: "boolean",
			},
		},
		AdditionalProperties: true,
	}
}
