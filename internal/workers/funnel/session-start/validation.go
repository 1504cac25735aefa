package sessionstart

import (
	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/models"
)

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"flow"},
		Properties: map[string]validation.Property{
			"flow": {
				Type:        "string",
				Description: "Funnel to start",
				Enum:        []string{models.FlowLoan, models.FlowOnboarding},
			},
			"applicationId": {
				Type:        "string",
				Description: "Existing application scope; generated when absent",
				MaxLength:   validation.IntPtr(64),
			},
		},
		AdditionalProperties: true,
	}
}
