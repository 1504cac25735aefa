package otpissue

type Input struct {
	ApplicationID string `json:"applicationId"`
}

// Output describes the outstanding challenge. The code itself is never
// returned.
type Output struct {
	OTPPurpose         string `json:"otpPurpose"`
	OTPLength          int    `json:"otpLength"`
	OTPAttempts        int    `json:"otpAttempts"`
	OTPResendInSeconds int64  `json:"otpResendInSeconds"`
}
