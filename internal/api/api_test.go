package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/otp"
	"loan-funnel-workers/internal/permission"
	"loan-funnel-workers/internal/verification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentCode struct {
	destination, code, purpose string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
}

func (s *recordingSender) Send(_ context.Context, destination, code, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentCode{destination, code, purpose})
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []map[string]interface{}
}

func (p *recordingPublisher) PublishMessage(_ context.Context, name, key string, vars map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	vars["_name"] = name
	vars["_key"] = key
	p.messages = append(p.messages, vars)
	return nil
}

type testServer struct {
	srv       *httptest.Server
	clock     *clock
	sender    *recordingSender
	publisher *recordingPublisher
	perms     *permission.StaticChecker
}

func newTestServer(t *testing.T, checks map[string]CheckFunc) *testServer {
	t.Helper()
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	cfg := flow.DefaultConfig()
	cfg.Now = clk.Now

	loan, err := flow.LoanFlow(cfg)
	require.NoError(t, err)
	onboard, err := flow.OnboardingFlow(cfg)
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	perms := permission.NewStaticChecker()
	ctrl, err := flow.NewController(flow.Options{
		Flows:       []*flow.Definition{loan, onboard},
		Drafts:      draft.NewMemoryStore(draft.DefaultRegistry(), log),
		Permissions: perms,
		Logger:      log,
		Now:         clk.Now,
	})
	require.NoError(t, err)

	sender := &recordingSender{}
	svc, err := otp.NewService(otp.Options{
		Store:     otp.NewMemoryStore(),
		Sender:    sender,
		Verifiers: map[string]otp.Verifier{models.FlowOnboarding: otp.FixedCodeVerifier{Code: "123456"}},
		Logger:    log,
		Now:       clk.Now,
	})
	require.NoError(t, err)

	verify, err := verification.NewService(ctrl, svc, perms)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	h, err := NewHandler(Options{
		Controller:   ctrl,
		Verification: verify,
		Publisher:    MessageStepPublisher{Client: pub},
		Checks:       checks,
		Logger:       log,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, clock: clk, sender: sender, publisher: pub, perms: perms}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *testServer) start(t *testing.T, flowName, id string) map[string]interface{} {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/flows/"+flowName+"/sessions", map[string]string{"applicationId": id})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	return body
}

func (s *testServer) cont(t *testing.T, id string, fields map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/continue", map[string]interface{}{"fields": fields})
}

// ==========================
// Ops endpoints
// ==========================

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = s.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestReady_ReportsFailingChecks(t *testing.T) {
	s := newTestServer(t, map[string]CheckFunc{
		"redis": func(context.Context) error { return nil },
		"zeebe": func(context.Context) error { return errors.New("connection refused") },
	})

	status, body := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["redis"])
	assert.Equal(t, "connection refused", checks["zeebe"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-42")

	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-Id"))
}

// ==========================
// Funnel
// ==========================

func TestLoanSession_MobileAndOTP(t *testing.T) {
	s := newTestServer(t, nil)
	view := s.start(t, "loan", "app-1")
	assert.Equal(t, flow.StepMobile, view["step"])
	assert.Equal(t, float64(0), view["ordinal"])

	status, body := s.cont(t, "app-1", map[string]interface{}{"mobile": "12345"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "FIELD_VALIDATION_FAILED", body["code"])
	assert.Contains(t, body["fields"], "mobile")

	status, body = s.cont(t, "app-1", map[string]interface{}{"mobile": "98765 43210"})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, flow.StepMobileOTP, body["to"])

	status, body = s.cont(t, "app-1", nil)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "STEP_GATE_PENDING", body["code"])

	status, body = s.do(t, http.MethodGet, "/api/v1/sessions/app-1/otp", nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "OTP_CHALLENGE_NOT_FOUND", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-1/otp", nil)
	require.Equal(t, http.StatusAccepted, status, "body: %v", body)
	assert.Equal(t, float64(30), body["resendInSeconds"])

	status, body = s.do(t, http.MethodGet, "/api/v1/sessions/app-1/otp", nil)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, float64(30), body["resendInSeconds"])
	assert.Equal(t, float64(6), body["length"])
	require.Len(t, s.sender.sent, 1)
	assert.Equal(t, "9876543210", s.sender.sent[0].destination)
	assert.Equal(t, flow.StepMobileOTP, s.sender.sent[0].purpose)

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-1/otp", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "OTP_RESEND_TOO_SOON", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-1/otp/verify", map[string]string{"code": "12"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "incomplete", body["result"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-1/otp/verify", map[string]string{"code": "654321"})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, "verified", body["result"])

	status, body = s.cont(t, "app-1", nil)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, flow.StepAadhaar, body["to"])

	require.Len(t, s.publisher.messages, 2)
	last := s.publisher.messages[1]
	assert.Equal(t, StepMessage, last["_name"])
	assert.Equal(t, "app-1", last["_key"])
	assert.Equal(t, flow.StepMobileOTP, last["fromStep"])
	assert.Equal(t, flow.StepAadhaar, last["toStep"])
}

func TestOnboardingOTP_FixedCodeMismatch(t *testing.T) {
	s := newTestServer(t, nil)
	s.start(t, "onboarding", "onb-1")
	status, _ := s.cont(t, "onb-1", map[string]interface{}{"mobile": "9876543210"})
	require.Equal(t, http.StatusOK, status)
	status, body := s.cont(t, "onb-1", map[string]interface{}{"aadhaar": "1234 5678 9012"})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, flow.StepOTP, body["to"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/sessions/onb-1/otp", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "123456", s.sender.sent[0].code)

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/onb-1/otp/verify", map[string]string{"code": "111111"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "OTP_MISMATCH", body["code"])
	meta := body["metadata"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["attempts"])
	assert.Equal(t, float64(30), meta["resendInSeconds"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/onb-1/otp/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, status, "body: %v", body)

	status, body = s.cont(t, "onb-1", nil)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, flow.StepPAN, body["to"])
}

func TestOTP_RejectedOffGatedSteps(t *testing.T) {
	s := newTestServer(t, nil)
	s.start(t, "loan", "app-2")

	status, body := s.do(t, http.MethodPost, "/api/v1/sessions/app-2/otp", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/missing/otp", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SESSION_NOT_FOUND", body["code"])
}

func TestEditAndBack(t *testing.T) {
	s := newTestServer(t, nil)
	s.start(t, "loan", "app-3")

	status, body := s.do(t, http.MethodPatch, "/api/v1/sessions/app-3/draft", map[string]interface{}{
		"fields": map[string]interface{}{"mobile": "98765-43210"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "9876543210", body["draft"].(map[string]interface{})["mobile"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-3/back", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NO_PREVIOUS_STEP", body["code"])

	status, _ = s.cont(t, "app-3", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-3/back", map[string]string{"expectedStep": flow.StepMobile})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "STEP_MISMATCH", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-3/back", map[string]string{"expectedStep": flow.StepMobileOTP})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, flow.StepMobile, body["step"])
}

func TestStart_UnknownFlow(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodPost, "/api/v1/flows/mortgage/sessions", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_FLOW", body["code"])
}

func TestBadJSON(t *testing.T) {
	s := newTestServer(t, nil)
	s.start(t, "loan", "app-4")

	resp, err := s.srv.Client().Post(s.srv.URL+"/api/v1/sessions/app-4/continue", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportPermissions(t *testing.T) {
	s := newTestServer(t, nil)
	s.start(t, "loan", "app-5")

	status, body := s.do(t, http.MethodPost, "/api/v1/sessions/app-5/permissions", map[string]string{
		"camera": "granted", "microphone": "denied",
	})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, "denied", body["status"])
	assert.Equal(t, []interface{}{"microphone"}, body["denied"])

	st, err := s.perms.Check(context.Background(), "app-5", permission.Camera)
	require.NoError(t, err)
	assert.Equal(t, permission.Granted, st)

	status, body = s.do(t, http.MethodPost, "/api/v1/sessions/app-5/permissions", map[string]string{"gps": "granted"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

// ==========================
// EMI
// ==========================

func TestCalculateEMI(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/v1/emi?principal=500000&tenure=24&rate=13", nil)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, float64(23771), body["paymentRounded"])
	assert.Equal(t, float64(10000), body["processingFee"])
	assert.Nil(t, body["schedule"])

	status, body = s.do(t, http.MethodGet, "/api/v1/emi?principal=500000&tenure=24&rate=13&schedule=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["schedule"], 24)
}

func TestCalculateEMI_Defaults(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/api/v1/emi", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(810000), body["principal"])
	assert.Equal(t, float64(42), body["tenureMonths"])
}

func TestCalculateEMI_Invalid(t *testing.T) {
	s := newTestServer(t, nil)
	for _, q := range []string{"principal=abc", "tenure=1.5", "principal=20000", "tenure=61", "rate=-1", "principal=55000", "rate=0", "rate=61", "rate=NaN", "rate=Inf", "principal=NaN", "principal=Inf"} {
		status, body := s.do(t, http.MethodGet, "/api/v1/emi?"+q, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status, q)
		assert.Equal(t, "INVALID_LOAN_TERMS", body["code"], q)
	}
}

func TestWriteJSON_UnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"payment": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
}
