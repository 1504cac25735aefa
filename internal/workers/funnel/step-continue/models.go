package stepcontinue

type Input struct {
	ApplicationID string                 `json:"applicationId"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
	ExpectedStep  string                 `json:"expectedStep,omitempty"`
}

// Output reports the transition. FlowCompleted is set when the step
// entered is terminal.
type Output struct {
	ApplicationID string `json:"applicationId"`
	FromStep      string `json:"fromStep"`
	CurrentStep   string `json:"currentStep"`
	Route         string `json:"route"`
	Ordinal       int    `json:"ordinal"`
	FlowCompleted bool   `json:"flowCompleted"`
}
