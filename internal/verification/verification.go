// Package verification ties OTP challenges and device permission reports
// to the step they gate.
package verification

import (
	"context"
	"errors"
	"time"

	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/otp"
	"loan-funnel-workers/internal/permission"
)

type Service struct {
	ctrl        *flow.Controller
	otp         *otp.Service
	permissions permission.Recorder
}

func NewService(ctrl *flow.Controller, codes *otp.Service, perms permission.Recorder) (*Service, error) {
	if ctrl == nil || codes == nil || perms == nil {
		return nil, errors.New("controller, otp service and permission recorder are required")
	}
	return &Service{ctrl: ctrl, otp: codes, permissions: perms}, nil
}

// Outcome is the state of a challenge after Issue or Verify.
type Outcome struct {
	Purpose         string `json:"purpose"`
	Length          int    `json:"length"`
	Attempts        int    `json:"attempts"`
	ResendInSeconds int64  `json:"resendInSeconds"`
	Result          string `json:"result,omitempty"`
}

// Issue sends a code for the session's current step to the mobile number
// captured earlier in the flow.
func (s *Service) Issue(ctx context.Context, applicationID string) (*Outcome, error) {
	sess, step, err := s.otpStep(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	mobile, err := s.ctrl.Draft(ctx, applicationID, flow.MobileDraftKey(sess.Flow))
	if err != nil {
		return nil, err
	}

	c, err := s.otp.Issue(ctx, otp.IssueRequest{
		Flow:        sess.Flow,
		Subject:     applicationID,
		Purpose:     step.ID,
		Destination: mobile.String("mobile"),
	})
	if err != nil {
		return nil, s.otpError(err, applicationID, c)
	}
	return s.outcome(c, ""), nil
}

// Status reports the outstanding challenge of the current step, for the
// resend countdown.
func (s *Service) Status(ctx context.Context, applicationID string) (*Outcome, error) {
	_, step, err := s.otpStep(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	c, err := s.otp.Status(ctx, applicationID, step.ID)
	if err != nil {
		return nil, s.otpError(err, applicationID, c)
	}
	return s.outcome(c, ""), nil
}

// Verify submits code for the current step. A match satisfies the step's
// gate; a mismatch is returned as OTP_MISMATCH with the attempt count.
func (s *Service) Verify(ctx context.Context, applicationID, code string) (*Outcome, error) {
	_, step, err := s.otpStep(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	res, c, err := s.otp.Verify(ctx, applicationID, step.ID, code)
	if err != nil {
		return nil, s.otpError(err, applicationID, c)
	}
	switch res {
	case otp.Mismatch:
		return nil, commonerrors.NewOTPMismatchError(step.ID).
			WithMetadata("attempts", c.Attempts).
			WithMetadata("resendInSeconds", s.resendIn(c))
	case otp.Verified:
		if err := s.ctrl.SatisfyGate(ctx, applicationID, step.ID); err != nil {
			return nil, err
		}
	}
	return s.outcome(c, res.String()), nil
}

// ReportPermissions records device reports and folds the KYC kinds.
func (s *Service) ReportPermissions(ctx context.Context, applicationID string, raw map[string]string) (permission.Report, error) {
	if _, err := s.ctrl.Session(ctx, applicationID); err != nil {
		return permission.Report{}, err
	}
	reports, err := permission.ParseReports(raw)
	if err != nil {
		return permission.Report{}, commonerrors.NewInvalidInputError(err.Error())
	}
	if err := s.permissions.Record(ctx, applicationID, reports); err != nil {
		return permission.Report{}, commonerrors.NewDraftStoreError(err)
	}
	report, err := permission.Evaluate(ctx, s.permissions, applicationID, permission.KYCKinds)
	if err != nil {
		return permission.Report{}, commonerrors.NewDraftStoreError(err)
	}
	return report, nil
}

func (s *Service) otpStep(ctx context.Context, applicationID string) (*flow.Session, *flow.Step, error) {
	sess, step, err := s.ctrl.Current(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	if step.Gate.Kind != flow.GateOTP {
		return nil, nil, commonerrors.NewInvalidInputError("step " + step.ID + " does not take a verification code")
	}
	return sess, step, nil
}

func (s *Service) outcome(c *otp.Challenge, result string) *Outcome {
	return &Outcome{
		Purpose:         c.Purpose,
		Length:          c.Length,
		Attempts:        c.Attempts,
		ResendInSeconds: s.resendIn(c),
		Result:          result,
	}
}

func (s *Service) resendIn(c *otp.Challenge) int64 {
	return int64(c.Remaining(s.otp.Now()).Round(time.Second).Seconds())
}

func (s *Service) otpError(err error, subject string, c *otp.Challenge) error {
	switch {
	case errors.Is(err, otp.ErrChallengeNotFound):
		return commonerrors.NewOTPChallengeNotFoundError(subject)
	case errors.Is(err, otp.ErrResendTooSoon) && c != nil:
		return commonerrors.NewOTPResendTooSoonError(c.Remaining(s.otp.Now()))
	case errors.Is(err, otp.ErrDeliveryFailed):
		return commonerrors.NewNotificationSendError("sms", err)
	}
	return err
}
