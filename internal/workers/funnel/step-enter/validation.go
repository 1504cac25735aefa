package stepenter

import "loan-funnel-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"applicationId"},
		Properties: map[string]validation.Property{
			"applicationId": {
				Type:      "string",
				MinLength: validation.IntPtr(1),
			},
		},
		AdditionalProperties: true,
	}
}
