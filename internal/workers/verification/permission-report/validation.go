package permissionreport

import "loan-funnel-workers/internal/common/validation"

var statusEnum = []string{"granted", "denied", "pending"}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"applicationId", "permissions"},
		Properties: map[string]validation.Property{
			"applicationId": {
				Type:      "string",
				MinLength: validation.IntPtr(1),
			},
			"permissions": {
				Type: "object",
				Properties: map[string]validation.Property{
					"camera":     {Type: "string", Enum: statusEnum},
					"microphone": {Type: "string", Enum: statusEnum},
					"internet":   {Type: "string", Enum: statusEnum},
				},
			},
		},
		AdditionalProperties: true,
	}
}
