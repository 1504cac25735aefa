package stepcontinue

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
			"fields": {
				Type:        "object",
				Description: "Field values to save on the current step before it is validated",
			},
			"expectedStep": {
				Type:        "string",
				Description: "Rejects the call when the session is on another step",
			},
		},
		AdditionalProperties: true,
	}
}
