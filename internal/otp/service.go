package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
)

// Options configures a Service. Verifiers is keyed by flow; flows without
// an entry use Default.
type Options struct {
	Store       Store
	Sender      Sender
	Verifiers   map[string]Verifier
	Default     Verifier
	Length      int
	ResendAfter time.Duration
	TTL         time.Duration
	Logger      logger.Logger
	Now         func() time.Time
}

type Service struct {
	opts Options
}

// IssueRequest names who gets a code and which step it unlocks.
type IssueRequest struct {
	Flow        string
	Subject     string
	Purpose     string
	Destination string
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("otp store is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("otp sender is required")
	}
	if opts.Default == nil {
		opts.Default = AnyCodeVerifier{}
	}
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.ResendAfter <= 0 {
		opts.ResendAfter = DefaultResendAfter
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{opts: opts}, nil
}

func (s *Service) verifierFor(flow string) Verifier {
	if v, ok := s.opts.Verifiers[flow]; ok {
		return v
	}
	return s.opts.Default
}

// Issue sends a fresh code. While the previous challenge is still counting
// down it returns that challenge with ErrResendTooSoon.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Challenge, error) {
	now := s.opts.Now()

	attempts := 0
	existing, err := s.opts.Store.Get(ctx, req.Subject, req.Purpose)
	switch {
	case err == nil:
		if !existing.CanResend(now) {
			return existing, fmt.Errorf("%w: %s", ErrResendTooSoon, existing.Remaining(now))
		}
		attempts = existing.Attempts
	case errors.Is(err, ErrChallengeNotFound):
		existing = nil
	default:
		return nil, err
	}

	code, err := s.codeFor(req.Flow)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	c := &Challenge{
		Subject:  req.Subject,
		Flow:     req.Flow,
		Purpose:  req.Purpose,
		Length:   s.opts.Length,
		Attempts: attempts,
		Code:     code,
	}
	c.restart(now, s.opts.ResendAfter)

	if err := s.opts.Store.Put(ctx, c, s.opts.TTL); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	if err := s.opts.Sender.Send(ctx, req.Destination, code, req.Purpose); err != nil {
		s.rollback(ctx, req, existing)
		return nil, err
	}

	s.opts.Logger.Info("otp challenge issued", map[string]interface{}{
		"subject":  req.Subject,
		"purpose":  req.Purpose,
		"attempts": attempts,
	})
	return c, nil
}

// rollback undoes the Put of a challenge whose code never reached the user,
// so the next Issue is not held back by its countdown.
func (s *Service) rollback(ctx context.Context, req IssueRequest, previous *Challenge) {
	var err error
	if previous != nil {
		err = s.opts.Store.Put(ctx, previous, s.opts.TTL)
	} else {
		err = s.opts.Store.Delete(ctx, req.Subject, req.Purpose)
	}
	if err != nil {
		s.opts.Logger.Warn("otp challenge rollback failed", map[string]interface{}{
			"subject": req.Subject,
			"purpose": req.Purpose,
			"error":   err.Error(),
		})
	}
}

// codeFor gives fixed-mode flows the advertised literal so the SMS and the
// screen agree.
func (s *Service) codeFor(flow string) (string, error) {
	if v, ok := s.verifierFor(flow).(FixedCodeVerifier); ok {
		return v.Code, nil
	}
	return generateCode(s.opts.Length)
}

// Verify submits a code. Short input is Incomplete and changes nothing. A
// mismatch counts an attempt and restarts the countdown; a match deletes
// the challenge.
func (s *Service) Verify(ctx context.Context, subject, purpose, code string) (Result, *Challenge, error) {
	c, err := s.opts.Store.Get(ctx, subject, purpose)
	if err != nil {
		return Incomplete, nil, err
	}
	if len(code) < c.Length {
		return Incomplete, c, nil
	}

	res, err := s.verifierFor(c.Flow).Submit(ctx, c, code)
	if err != nil {
		return Incomplete, c, err
	}
	metrics.OTPVerifications.WithLabelValues(purpose, res.String()).Inc()

	now := s.opts.Now()
	if res == Mismatch {
		c.Attempts++
		c.restart(now, s.opts.ResendAfter)
		if err := s.opts.Store.Put(ctx, c, s.opts.TTL); err != nil {
			return res, c, fmt.Errorf("store challenge: %w", err)
		}
		s.opts.Logger.Warn("otp mismatch", map[string]interface{}{
			"subject":  subject,
			"purpose":  purpose,
			"attempts": c.Attempts,
		})
		return res, c, nil
	}

	c.Verified = true
	if err := s.opts.Store.Delete(ctx, subject, purpose); err != nil {
		return res, c, fmt.Errorf("delete challenge: %w", err)
	}
	return res, c, nil
}

// Status returns the outstanding challenge for display of the countdown.
func (s *Service) Status(ctx context.Context, subject, purpose string) (*Challenge, error) {
	return s.opts.Store.Get(ctx, subject, purpose)
}

// Now is the service clock.
func (s *Service) Now() time.Time { return s.opts.Now() }
