package otp

import (
	"context"
	"crypto/subtle"
	"fmt"

	"loan-funnel-workers/internal/common/validation"
)

type Result int

const (
	Incomplete Result = iota
	Mismatch
	Verified
)

func (r Result) String() string {
	switch r {
	case Verified:
		return "verified"
	case Mismatch:
		return "mismatch"
	default:
		return "incomplete"
	}
}

// Verifier decides whether a complete code unlocks a challenge.
type Verifier interface {
	Submit(ctx context.Context, c *Challenge, code string) (Result, error)
}

// AnyCodeVerifier accepts any code of the challenge length.
type AnyCodeVerifier struct{}

func (AnyCodeVerifier) Submit(_ context.Context, c *Challenge, code string) (Result, error) {
	if validation.IsValidOTP(code, c.Length) {
		return Verified, nil
	}
	return Mismatch, nil
}

// FixedCodeVerifier accepts one literal code.
type FixedCodeVerifier struct {
	Code string
}

func (v FixedCodeVerifier) Submit(_ context.Context, _ *Challenge, code string) (Result, error) {
	return compare(v.Code, code), nil
}

// IssuedCodeVerifier compares against the code that was delivered.
type IssuedCodeVerifier struct{}

func (IssuedCodeVerifier) Submit(_ context.Context, c *Challenge, code string) (Result, error) {
	if c.Code == "" {
		return Mismatch, nil
	}
	return compare(c.Code, code), nil
}

func compare(want, got string) Result {
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1 {
		return Verified
	}
	return Mismatch
}

// Verifier modes accepted in config.
const (
	ModeAny    = "any"
	ModeFixed  = "fixed"
	ModeIssued = "issued"
)

func NewVerifier(mode, fixedCode string) (Verifier, error) {
	switch mode {
	case ModeAny, "":
		return AnyCodeVerifier{}, nil
	case ModeFixed:
		if fixedCode == "" {
			return nil, fmt.Errorf("fixed otp mode needs a code")
		}
		return FixedCodeVerifier{Code: fixedCode}, nil
	case ModeIssued:
		return IssuedCodeVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown otp mode %q", mode)
	}
}
