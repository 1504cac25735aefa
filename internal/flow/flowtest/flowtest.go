// Package flowtest builds in-memory controllers for worker and API tests.
package flowtest

import (
	"context"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/otp"
	"loan-funnel-workers/internal/permission"
	"loan-funnel-workers/internal/verification"

	"github.com/stretchr/testify/require"
)

// Clock is a settable time source.
type Clock struct{ T time.Time }

func (c *Clock) Now() time.Time          { return c.T }
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Sender records every code it is asked to deliver.
type Sender struct {
	Codes map[string]string
	Err   error
}

func (s *Sender) Send(_ context.Context, destination, code, _ string) error {
	if s.Err != nil {
		return s.Err
	}
	if s.Codes == nil {
		s.Codes = map[string]string{}
	}
	s.Codes[destination] = code
	return nil
}

type Env struct {
	Controller   *flow.Controller
	Verification *verification.Service
	Drafts       *draft.MemoryStore
	Permissions  *permission.StaticChecker
	Sender       *Sender
	Clock        *Clock
	Logger       logger.Logger
}

// New wires both flows over memory stores. Onboarding codes are fixed to
// 123456; loan codes accept any six digits.
func New(t testing.TB) *Env {
	t.Helper()
	clk := &Clock{T: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	log := logger.NewTestLogger(t)

	cfg := flow.DefaultConfig()
	cfg.Now = clk.Now
	loan, err := flow.LoanFlow(cfg)
	require.NoError(t, err)
	onboard, err := flow.OnboardingFlow(cfg)
	require.NoError(t, err)

	store := draft.NewMemoryStore(draft.DefaultRegistry(), log)
	perms := permission.NewStaticChecker()
	ctrl, err := flow.NewController(flow.Options{
		Flows:       []*flow.Definition{loan, onboard},
		Drafts:      store,
		Permissions: perms,
		Logger:      log,
		Now:         clk.Now,
	})
	require.NoError(t, err)

	sender := &Sender{}
	codes, err := otp.NewService(otp.Options{
		Store:     otp.NewMemoryStore(),
		Sender:    sender,
		Verifiers: map[string]otp.Verifier{models.FlowOnboarding: otp.FixedCodeVerifier{Code: "123456"}},
		Logger:    log,
		Now:       clk.Now,
	})
	require.NoError(t, err)

	svc, err := verification.NewService(ctrl, codes, perms)
	require.NoError(t, err)

	return &Env{
		Controller:   ctrl,
		Verification: svc,
		Drafts:       store,
		Permissions:  perms,
		Sender:       sender,
		Clock:        clk,
		Logger:       log,
	}
}

// StartLoan opens a loan session on its first step.
func (e *Env) StartLoan(t testing.TB, id string) {
	t.Helper()
	_, err := e.Controller.Start(context.Background(), models.FlowLoan, id)
	require.NoError(t, err)
}

// ToMobileOTP starts a loan session and submits a mobile number.
func (e *Env) ToMobileOTP(t testing.TB, id, mobile string) {
	t.Helper()
	e.StartLoan(t, id)
	_, err := e.Controller.Continue(context.Background(), id, map[string]interface{}{"mobile": mobile}, flow.StepMobile)
	require.NoError(t, err)
}

// GrantKYC marks every KYC permission granted for id.
func (e *Env) GrantKYC(id string) {
	for _, k := range permission.KYCKinds {
		e.Permissions.Set(id, k, permission.Granted)
	}
}
