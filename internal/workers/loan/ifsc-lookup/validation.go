package ifsclookup

import "loan-funnel-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"ifsc"},
		Properties: map[string]validation.Property{
			"ifsc": {
				Type:        "string",
				Description: "11 character IFSC; case and surrounding spaces are ignored",
				MinLength:   validation.IntPtr(11),
				MaxLength:   validation.IntPtr(20),
			},
			"applicationId": {
				Type: "string",
			},
		},
		AdditionalProperties: true,
	}
}
