package api

import (
	"context"

	"loan-funnel-workers/internal/flow"
)

// StepMessage is the message correlated on every HTTP transition. A process
// instance waiting on it is keyed by applicationId.
const StepMessage = "funnel-step-completed"

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, vars map[string]interface{}) error
}

// MessageStepPublisher turns transitions into process messages.
type MessageStepPublisher struct {
	Client MessagePublisher
}

func (p MessageStepPublisher) PublishStep(ctx context.Context, applicationID string, tr *flow.Transition) error {
	vars := map[string]interface{}{
		"applicationId": applicationID,
		"fromStep":      tr.From,
		"toStep":        tr.To,
	}
	if tr.View != nil {
		vars["flow"] = tr.View.Flow
		vars["completed"] = tr.View.Completed
	}
	return p.Client.PublishMessage(ctx, StepMessage, applicationID, vars)
}
