// Package otp issues and verifies one-time codes for the funnel's
// verification steps.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"
)

var (
	ErrChallengeNotFound = errors.New("OTP_CHALLENGE_NOT_FOUND")
	ErrResendTooSoon     = errors.New("OTP_RESEND_TOO_SOON")
	ErrDeliveryFailed    = errors.New("OTP_DELIVERY_FAILED")
)

const (
	DefaultLength      = 6
	DefaultResendAfter = 30 * time.Second
	DefaultTTL         = 10 * time.Minute
)

// Challenge is one outstanding code for a subject and purpose. Purpose is
// the step the code unlocks.
type Challenge struct {
	Subject  string    `json:"subject"`
	Flow     string    `json:"flow"`
	Purpose  string    `json:"purpose"`
	Length   int       `json:"length"`
	IssuedAt time.Time `json:"issuedAt"`
	ResendAt time.Time `json:"resendAt"`
	Attempts int       `json:"attempts"`
	Verified bool      `json:"verified"`
	Code     string    `json:"code,omitempty"`
}

// Remaining is the time left before a resend is allowed, never negative.
func (c *Challenge) Remaining(now time.Time) time.Duration {
	if d := c.ResendAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (c *Challenge) CanResend(now time.Time) bool {
	return c.Remaining(now) == 0
}

func (c *Challenge) restart(now time.Time, resendAfter time.Duration) {
	c.IssuedAt = now
	c.ResendAt = now.Add(resendAfter)
}

// generateCode returns n random decimal digits.
func generateCode(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
