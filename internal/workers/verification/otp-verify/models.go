package otpverify

type Input struct {
	ApplicationID string `json:"applicationId"`
	Code          string `json:"code"`
}

type Output struct {
	OTPResult   string `json:"otpResult"`
	OTPVerified bool   `json:"otpVerified"`
	OTPPurpose  string `json:"otpPurpose"`
}
