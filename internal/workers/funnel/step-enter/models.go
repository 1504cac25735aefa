package stepenter

import (
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/flow"
)

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID   string      `json:"applicationId"`
	CurrentStep     string      `json:"currentStep"`
	Route           string      `json:"route"`
	Draft           draft.Draft `json:"draft"`
	GateKind        string      `json:"gateKind,omitempty"`
	GateSatisfied   bool        `json:"gateSatisfied"`
	GateRemainingMs int64       `json:"gateRemainingMs"`
	Terminal        bool        `json:"terminal"`
	Completed       bool        `json:"completed"`
	DraftReset      bool        `json:"draftReset"`
}

func outputFromView(v *flow.View) *Output {
	d := v.Draft
	if d == nil {
		d = draft.Draft{}
	}
	return &Output{
		ApplicationID:   v.ApplicationID,
		CurrentStep:     v.Step,
		Route:           v.Route,
		Draft:           d,
		GateKind:        string(v.Gate.Kind),
		GateSatisfied:   v.Gate.Satisfied,
		GateRemainingMs: v.Gate.RemainingMs,
		Terminal:        v.Terminal,
		Completed:       v.Completed,
		DraftReset:      v.DraftReset,
	}
}
