package sanctionrecord

import "loan-funnel-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"applicationId"},
		Properties: map[string]validation.Property{
			"applicationId": {
				Type:        "string",
				Description: "Application whose final sanction is recorded",
				MinLength:   validation.IntPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}
