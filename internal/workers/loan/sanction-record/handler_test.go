package sanctionrecord

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/database"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	mock.Mock
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if out, ok := args.Get(0).(*ses.SendEmailOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingIndexer struct {
	mu   sync.Mutex
	docs map[string]interface{}
	err  error
}

func (r *recordingIndexer) Index(_ context.Context, index, id string, doc interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = map[string]interface{}{}
	}
	r.docs[index+"/"+id] = doc
	return r.err
}

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     "loan.sanction.record",
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_SanctionRecord",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

func requireCode(t *testing.T, err error, code commonerrors.ErrorCode) *commonerrors.StandardError {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := commonerrors.AsStandardError(err)
	require.True(t, ok, "error should be StandardError: %v", err)
	assert.Equal(t, code, stdErr.Code)
	return stdErr
}

const appID = "app-1"

var sanction = models.Sanction{
	LoanID:        "PL0ABCDEF12",
	Amount:        500000,
	InterestRate:  10.99,
	Tenure:        24,
	EMI:           23302,
	ProcessingFee: 10000,
	NetDisbursal:  490000,
	Revised:       true,
}

type fixture struct {
	handler *Handler
	sqlMock sqlmock.Sqlmock
	drafts  *draft.MemoryStore
	ses     *MockSESService
	index   *recordingIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	store := draft.NewMemoryStore(draft.DefaultRegistry(), log)
	sesMock := new(MockSESService)
	idx := &recordingIndexer{}

	cfg := DefaultConfig()
	cfg.SendLetter = true
	cfg.FromEmail = "loans@example.com"

	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		Logger:       log,
		DB:           database.NewPostgresFromDB(db),
		Drafts:       store,
		Index:        idx,
		Email:        sesMock,
	})
	require.NoError(t, err)
	return &fixture{handler: h, sqlMock: sqlMock, drafts: store, ses: sesMock, index: idx}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	s, err := draft.FromStruct(sanction)
	require.NoError(t, err)
	require.NoError(t, f.drafts.Save(ctx, appID, models.KeyLoanFinalSanction, s))
	require.NoError(t, f.drafts.Save(ctx, appID, models.KeyLoanMobile, draft.Draft{"mobile": "9876543210"}))
	require.NoError(t, f.drafts.Save(ctx, appID, models.KeyLoanPAN, draft.Draft{"pan": "ABCDE1234F", "name": "Priya Sharma", "dob": "24/10/1997"}))
	require.NoError(t, f.drafts.Save(ctx, appID, models.KeyLoanBasicDetails, draft.Draft{"email": "priya@example.com"}))
	require.NoError(t, f.drafts.Save(ctx, appID, models.KeyLoanBankDetails, draft.Draft{"ifscCode": "SBIN0001234", "accountNumber": "123456789012"}))
}

func (f *fixture) expectInsert(rows int64) {
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectExec("INSERT INTO loan_applications").
		WithArgs(sqlmock.AnyArg(), appID, sanction.LoanID, "9876543210", "Priya Sharma", "priya@example.com",
			500000.0, 10.99, 24, 23302.0, 10000.0, 490000.0, "SBIN0001234", "9012", models.StatusSanctioned, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, rows))
}

// ==========================
// Configuration Tests
// ==========================

func TestNewHandler_RequiresDependencies(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.Error(t, err)

	_, err = NewHandler(HandlerOptions{CustomConfig: DefaultConfig(), DB: database.NewPostgresFromDB(db)})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.SendLetter = true
	assert.Error(t, cfg.Validate())
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	appCfg := &config.Config{}
	appCfg.Database.Elasticsearch.ApplicationsIndex = "applications_v2"
	appCfg.Integrations.AWS.SES.Enabled = true
	appCfg.Integrations.AWS.SES.FromEmail = "loans@example.com"
	appCfg.Workers = map[string]config.WorkerConfig{
		"loan-sanction-record": {Enabled: true, MaxJobsActive: 1, Timeout: 20000},
	}

	cfg := createConfigFromAppConfig(appCfg, nil)
	assert.Equal(t, "applications_v2", cfg.ApplicationsIndex)
	assert.True(t, cfg.SendLetter)
	assert.Equal(t, "loans@example.com", cfg.FromEmail)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, "loan_applications", createConfigFromAppConfig(nil, nil).ApplicationsIndex)
}

// ==========================
// Execution Tests
// ==========================

func TestHandler_Execute_RecordsSanction(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.expectInsert(1)
	f.sqlMock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), appID, AuditEventSanctioned, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectCommit()

	var sent *ses.SendEmailInput
	f.ses.On("SendEmail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*ses.SendEmailInput) }).
		Return(&ses.SendEmailOutput{}, nil).Once()

	out, err := f.handler.Execute(context.Background(), &Input{ApplicationID: appID})
	require.NoError(t, err)
	assert.Equal(t, sanction.LoanID, out.LoanID)
	assert.Equal(t, models.StatusSanctioned, out.Status)
	assert.Equal(t, 500000.0, out.SanctionedAmount)
	assert.Equal(t, 23302.0, out.EMI)
	assert.NotEmpty(t, out.RecordID)
	assert.False(t, out.AlreadyRecorded)
	assert.True(t, out.LetterSent)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())

	require.NotNil(t, sent)
	assert.Equal(t, []string{"priya@example.com"}, sent.Destination.ToAddresses)
	assert.Equal(t, "loans@example.com", *sent.Source)
	assert.Contains(t, *sent.Message.Body.Text.Data, sanction.LoanID)
	assert.Contains(t, *sent.Message.Body.Text.Data, "Priya Sharma")

	doc, ok := f.index.docs["loan_applications/"+appID].(*models.LoanApplicationRecord)
	require.True(t, ok)
	assert.Equal(t, "9012", doc.BankAccountLast4)
}

func TestHandler_Execute_AlreadyRecorded(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.expectInsert(0)
	f.sqlMock.ExpectRollback()

	sanctionedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.sqlMock.ExpectQuery("SELECT id, loan_id, principal, emi, status, sanctioned_at FROM loan_applications").
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "loan_id", "principal", "emi", "status", "sanctioned_at"}).
			AddRow("rec-1", sanction.LoanID, 500000.0, 23302.0, models.StatusDisbursed, sanctionedAt))

	out, err := f.handler.Execute(context.Background(), &Input{ApplicationID: appID})
	require.NoError(t, err)
	assert.True(t, out.AlreadyRecorded)
	assert.Equal(t, "rec-1", out.RecordID)
	assert.Equal(t, models.StatusDisbursed, out.Status)
	assert.Equal(t, sanctionedAt, out.SanctionedAt)
	assert.False(t, out.LetterSent)
	f.ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	assert.Empty(t, f.index.docs)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestHandler_Execute_LetterFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.expectInsert(1)
	f.sqlMock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectCommit()
	f.ses.On("SendEmail", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	f.index.err = assert.AnError

	out, err := f.handler.Execute(context.Background(), &Input{ApplicationID: appID})
	require.NoError(t, err)
	assert.False(t, out.LetterSent)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		wantErr commonerrors.ErrorCode
	}{
		{
			name:    "no final sanction",
			setup:   func(*testing.T, *fixture) {},
			wantErr: commonerrors.ErrCodeApplicationNotFound,
		},
		{
			name: "corrupt final sanction",
			setup: func(t *testing.T, f *fixture) {
				f.drafts.PutRaw(appID, models.KeyLoanFinalSanction, []byte("{oops"))
			},
			wantErr: commonerrors.ErrCodeDraftCorrupt,
		},
		{
			name: "begin fails",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t)
				f.sqlMock.ExpectBegin().WillReturnError(assert.AnError)
			},
			wantErr: commonerrors.ErrCodeDatabaseInsertFailed,
		},
		{
			name: "audit insert fails",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t)
				f.expectInsert(1)
				f.sqlMock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)
				f.sqlMock.ExpectRollback()
			},
			wantErr: commonerrors.ErrCodeDatabaseInsertFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			_, err := f.handler.Execute(context.Background(), &Input{ApplicationID: appID})
			requireCode(t, err, tt.wantErr)
			f.ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
			assert.NoError(t, f.sqlMock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_SparseDrafts(t *testing.T) {
	f := newFixture(t)
	s, err := draft.FromStruct(sanction)
	require.NoError(t, err)
	require.NoError(t, f.drafts.Save(context.Background(), appID, models.KeyLoanFinalSanction, s))

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectExec("INSERT INTO loan_applications").
		WithArgs(sqlmock.AnyArg(), appID, sanction.LoanID, "", "", nil,
			500000.0, 10.99, 24, 23302.0, 10000.0, 490000.0, "", "", models.StatusSanctioned, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(0, 1))
	f.sqlMock.ExpectCommit()

	out, err := f.handler.Execute(context.Background(), &Input{ApplicationID: appID})
	require.NoError(t, err)
	assert.False(t, out.LetterSent, "no address on file")
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
}

// ==========================
// Input Schema Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	var input Input
	require.NoError(t, camunda.ParseInput(createMockJob(1, map[string]interface{}{"applicationId": appID}), GetInputSchema(), &input))
	assert.Equal(t, appID, input.ApplicationID)

	err := camunda.ParseInput(createMockJob(2, map[string]interface{}{}), GetInputSchema(), &input)
	requireCode(t, err, commonerrors.ErrCodeInvalidInput)
}
