package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, destination, code, purpose string) error {
	args := m.Called(ctx, destination, code, purpose)
	return args.Error(0)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T, verifiers map[string]Verifier) (*Service, *MockSender, *clock) {
	t.Helper()
	sender := new(MockSender)
	sender.On("Send", mock.Anything, "9876543210", mock.Anything, mock.Anything).Return(nil)
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}

	svc, err := NewService(Options{
		Store:     NewMemoryStore(),
		Sender:    sender,
		Verifiers: verifiers,
		Logger:    logger.NewTestLogger(t),
		Now:       clk.Now,
	})
	require.NoError(t, err)
	return svc, sender, clk
}

func issue(t *testing.T, svc *Service, flow string) *Challenge {
	t.Helper()
	c, err := svc.Issue(context.Background(), IssueRequest{
		Flow: flow, Subject: "app-1", Purpose: "mobile-otp", Destination: "9876543210",
	})
	require.NoError(t, err)
	return c
}

// ==========================
// Challenge
// ==========================

func TestChallenge_RemainingCountsDown(t *testing.T) {
	start := time.Now()
	c := &Challenge{}
	c.restart(start, 30*time.Second)

	prev := c.Remaining(start)
	assert.Equal(t, 30*time.Second, prev)
	assert.False(t, c.CanResend(start))

	for s := 1; s <= 35; s++ {
		r := c.Remaining(start.Add(time.Duration(s) * time.Second))
		assert.LessOrEqual(t, r, prev)
		assert.GreaterOrEqual(t, r, time.Duration(0))
		prev = r
	}
	assert.True(t, c.CanResend(start.Add(30*time.Second)))
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

// ==========================
// Verifiers
// ==========================

func TestVerifiers(t *testing.T) {
	ctx := context.Background()
	c := &Challenge{Length: 6, Code: "482913"}

	tests := []struct {
		name     string
		verifier Verifier
		code     string
		want     Result
	}{
		{"any accepts digits", AnyCodeVerifier{}, "000000", Verified},
		{"any rejects letters", AnyCodeVerifier{}, "12345a", Mismatch},
		{"fixed accepts literal", FixedCodeVerifier{Code: "123456"}, "123456", Verified},
		{"fixed rejects other", FixedCodeVerifier{Code: "123456"}, "654321", Mismatch},
		{"issued accepts sent code", IssuedCodeVerifier{}, "482913", Verified},
		{"issued rejects other", IssuedCodeVerifier{}, "123456", Mismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.verifier.Submit(ctx, c, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := IssuedCodeVerifier{}.Submit(ctx, &Challenge{Length: 6}, "123456")
	require.NoError(t, err)
	assert.Equal(t, Mismatch, got)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier("fixed", "123456")
	require.NoError(t, err)
	assert.Equal(t, FixedCodeVerifier{Code: "123456"}, v)

	v, err = NewVerifier("", "")
	require.NoError(t, err)
	assert.IsType(t, AnyCodeVerifier{}, v)

	_, err = NewVerifier("fixed", "")
	assert.Error(t, err)
	_, err = NewVerifier("sms", "")
	assert.Error(t, err)
}

// ==========================
// Service
// ==========================

func TestService_IssueAndResend(t *testing.T) {
	svc, sender, clk := newService(t, nil)
	ctx := context.Background()

	c := issue(t, svc, "loan")
	assert.Equal(t, 6, c.Length)
	assert.Equal(t, 30*time.Second, c.Remaining(clk.Now()))

	clk.Advance(10 * time.Second)
	existing, err := svc.Issue(ctx, IssueRequest{Flow: "loan", Subject: "app-1", Purpose: "mobile-otp", Destination: "9876543210"})
	assert.ErrorIs(t, err, ErrResendTooSoon)
	assert.Equal(t, 20*time.Second, existing.Remaining(clk.Now()))

	clk.Advance(20 * time.Second)
	_ = issue(t, svc, "loan")
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestService_VerifyAnyCode(t *testing.T) {
	svc, _, _ := newService(t, nil)
	ctx := context.Background()
	issue(t, svc, "loan")

	res, _, err := svc.Verify(ctx, "app-1", "mobile-otp", "123")
	require.NoError(t, err)
	assert.Equal(t, Incomplete, res)

	res, c, err := svc.Verify(ctx, "app-1", "mobile-otp", "246810")
	require.NoError(t, err)
	assert.Equal(t, Verified, res)
	assert.True(t, c.Verified)

	_, err = svc.Status(ctx, "app-1", "mobile-otp")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestService_FixedCodeMismatchRestartsCountdown(t *testing.T) {
	svc, sender, clk := newService(t, map[string]Verifier{"onboarding": FixedCodeVerifier{Code: "123456"}})
	ctx := context.Background()
	issue(t, svc, "onboarding")
	sender.AssertCalled(t, "Send", mock.Anything, "9876543210", "123456", "mobile-otp")

	clk.Advance(25 * time.Second)
	res, c, err := svc.Verify(ctx, "app-1", "mobile-otp", "111111")
	require.NoError(t, err)
	assert.Equal(t, Mismatch, res)
	assert.Equal(t, 1, c.Attempts)
	assert.Equal(t, 30*time.Second, c.Remaining(clk.Now()))

	res, _, err = svc.Verify(ctx, "app-1", "mobile-otp", "123456")
	require.NoError(t, err)
	assert.Equal(t, Verified, res)
}

func TestService_IssuedCode(t *testing.T) {
	svc, _, _ := newService(t, map[string]Verifier{"loan": IssuedCodeVerifier{}})
	ctx := context.Background()
	c := issue(t, svc, "loan")

	res, _, err := svc.Verify(ctx, "app-1", "mobile-otp", c.Code)
	require.NoError(t, err)
	assert.Equal(t, Verified, res)
}

func TestService_AttemptsSurviveResend(t *testing.T) {
	svc, _, clk := newService(t, map[string]Verifier{"loan": IssuedCodeVerifier{}})
	issue(t, svc, "loan")

	_, _, err := svc.Verify(context.Background(), "app-1", "mobile-otp", "xxxxxx")
	require.NoError(t, err)
	clk.Advance(31 * time.Second)

	c := issue(t, svc, "loan")
	assert.Equal(t, 1, c.Attempts)
}

func TestService_VerifyWithoutChallenge(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, _, err := svc.Verify(context.Background(), "app-1", "mobile-otp", "123456")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestService_DeliveryFailure(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ErrDeliveryFailed).Once()
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	store := NewMemoryStore()
	svc, err := NewService(Options{Store: store, Sender: sender})
	require.NoError(t, err)
	ctx := context.Background()
	req := IssueRequest{Subject: "s", Purpose: "p", Destination: "9876543210"}

	_, err = svc.Issue(ctx, req)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	_, err = store.Get(ctx, "s", "p")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	c, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.False(t, c.CanResend(time.Now()))
	sender.AssertExpectations(t)
}

func TestService_DeliveryFailureRestoresPrevious(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ErrDeliveryFailed).Once()
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	svc, err := NewService(Options{Store: store, Sender: sender, Now: clk.Now})
	require.NoError(t, err)
	ctx := context.Background()
	req := IssueRequest{Subject: "s", Purpose: "p", Destination: "9876543210"}

	first, err := svc.Issue(ctx, req)
	require.NoError(t, err)

	clk.Advance(31 * time.Second)
	_, err = svc.Issue(ctx, req)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	stored, err := store.Get(ctx, "s", "p")
	require.NoError(t, err)
	assert.Equal(t, first.ResendAt, stored.ResendAt)
	assert.Equal(t, first.Code, stored.Code)

	second, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(DefaultResendAfter), second.ResendAt)
	sender.AssertExpectations(t)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
	_, err = NewService(Options{Store: NewMemoryStore()})
	assert.Error(t, err)
}

// ==========================
// Stores and senders
// ==========================

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	_, err = store.Get(ctx, "app-1", "mobile-otp")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	c := &Challenge{Subject: "app-1", Purpose: "mobile-otp", Length: 6, Attempts: 2}
	require.NoError(t, store.Put(ctx, c, 10*time.Minute))
	assert.True(t, mr.Exists("otp:app-1:mobile-otp"))
	assert.Equal(t, 10*time.Minute, mr.TTL("otp:app-1:mobile-otp"))

	got, err := store.Get(ctx, "app-1", "mobile-otp")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	require.NoError(t, store.Delete(ctx, "app-1", "mobile-otp"))
	assert.False(t, mr.Exists("otp:app-1:mobile-otp"))

	require.NoError(t, mr.Set("otp:app-1:aadhaar-otp", "{"))
	_, err = store.Get(ctx, "app-1", "aadhaar-otp")
	assert.Error(t, err)
}

func TestSNSSender(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return *in.PhoneNumber == "+919876543210" &&
			*in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue == "LOANAPP"
	})).Return(&sns.PublishOutput{}, nil).Once()
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

	sender := NewSNSSender(client, "LOANAPP")
	require.NoError(t, sender.Send(context.Background(), "9876543210", "123456", "mobile-otp"))
	assert.ErrorIs(t, sender.Send(context.Background(), "9876543210", "123456", "mobile-otp"), ErrDeliveryFailed)
	client.AssertExpectations(t)
}

func TestE164(t *testing.T) {
	assert.Equal(t, "+919876543210", E164("9876543210"))
	assert.Equal(t, "+14155550100", E164("+14155550100"))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(logger.NewNoOpLogger()).Send(context.Background(), "9876543210", "123456", "otp"))
}
