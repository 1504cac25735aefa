package sessionstart

import "loan-funnel-workers/internal/flow"

type Input struct {
	Flow          string `json:"flow"`
	ApplicationID string `json:"applicationId,omitempty"`
}

// Output names the step the session is on.
type Output struct {
	ApplicationID string `json:"applicationId"`
	Flow          string `json:"flow"`
	CurrentStep   string `json:"currentStep"`
	Route         string `json:"route"`
	Ordinal       int    `json:"ordinal"`
	TotalSteps    int    `json:"totalSteps"`
	Completed     bool   `json:"completed"`
}

func outputFromView(v *flow.View) *Output {
	return &Output{
		ApplicationID: v.ApplicationID,
		Flow:          v.Flow,
		CurrentStep:   v.Step,
		Route:         v.Route,
		Ordinal:       v.Ordinal,
		TotalSteps:    v.Total,
		Completed:     v.Completed,
	}
}
