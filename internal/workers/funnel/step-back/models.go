package stepback

type Input struct {
	ApplicationID string `json:"applicationId"`
	ExpectedStep  string `json:"expectedStep,omitempty"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	CurrentStep   string `json:"currentStep"`
	Route         string `json:"route"`
	Ordinal       int    `json:"ordinal"`
}
