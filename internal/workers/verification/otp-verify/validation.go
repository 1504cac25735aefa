package otpverify

import "loan-funnel-workers/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"applicationId", "code"},
		Properties: map[string]validation.Property{
			"applicationId": {
				Type:      "string",
				MinLength: validation.IntPtr(1),
			},
			"code": {
				Type:        "string",
				Description: "Digits entered so far",
				Pattern:     validation.StringPtr(`^[0-9]*$`),
				MaxLength:   validation.IntPtr(8),
			},
		},
		AdditionalProperties: true,
	}
}
