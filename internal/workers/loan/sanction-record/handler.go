// Package sanctionrecord persists the final sanction of a loan application.
package sanctionrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/aws"
	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/database"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "loan.sanction.record"

// Indexer is the Elasticsearch side: where sanctioned applications are indexed.
type Indexer interface {
	Index(ctx context.Context, index, id string, doc interface{}) error
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
	obs          *observability.Observability
	db           *database.PostgresClient
	drafts       draft.Store
	index        Indexer
	email        aws.SESService
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Logger        logger.Logger
	Observability *observability.Observability
	DB            *database.PostgresClient
	Drafts        draft.Store
	Index         Indexer
	Email         aws.SESService
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for loan-sanction-record: %w", err)
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("postgres client is required")
	}
	if opts.Drafts == nil {
		return nil, fmt.Errorf("draft store is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       workerConfig,
		logger:       log,
		errorHandler: commonerrors.NewErrorHandler(log),
		obs:          opts.Observability,
		db:           opts.DB,
		drafts:       opts.Drafts,
		index:        opts.Index,
		email:        opts.Email,
	}, nil
}

// Config returns the effective worker configuration.
func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := camunda.ParseInput(job, GetInputSchema(), &input); err != nil {
		h.failJob(ctx, client, job, err, startTime)
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err, startTime)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(startTime), "completed")
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(startTime), "failed")
}

// Execute runs the task without a job, for tests and direct callers.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	record, err := h.assemble(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	inserted, err := h.insert(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := h.existing(ctx, input.ApplicationID)
		if err != nil {
			return nil, err
		}
		h.logger.Info("sanction already recorded", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"loanId":        existing.LoanID,
		})
		return &Output{
			LoanID:           existing.LoanID,
			RecordID:         existing.ID,
			Status:           existing.Status,
			SanctionedAmount: existing.Principal,
			EMI:              existing.EMI,
			SanctionedAt:     existing.SanctionedAt,
			AlreadyRecorded:  true,
		}, nil
	}

	h.indexRecord(ctx, record)
	sent := h.sendLetter(ctx, record)

	h.logger.Info("sanction recorded", map[string]interface{}{
		"applicationId": record.ApplicationID,
		"loanId":        record.LoanID,
		"principal":     record.Principal,
	})
	return &Output{
		LoanID:           record.LoanID,
		RecordID:         record.ID,
		Status:           record.Status,
		SanctionedAmount: record.Principal,
		EMI:              record.EMI,
		SanctionedAt:     record.SanctionedAt,
		LetterSent:       sent,
	}, nil
}

// assemble builds the row from the application's drafts. Only the final
// sanction is required; identity and bank fields may be blank.
func (h *Handler) assemble(ctx context.Context, applicationID string) (*models.LoanApplicationRecord, error) {
	sanctionDraft, ok, err := h.drafts.Load(ctx, applicationID, models.KeyLoanFinalSanction)
	if err != nil {
		if errors.Is(err, draft.ErrCorruptDraft) {
			return nil, commonerrors.NewDraftCorruptError(models.KeyLoanFinalSanction, err)
		}
		return nil, commonerrors.NewDraftStoreError(err)
	}
	if !ok {
		return nil, commonerrors.NewApplicationNotFoundError(applicationID)
	}
	var sanction models.Sanction
	if err := sanctionDraft.Bind(&sanction); err != nil {
		return nil, commonerrors.NewDraftCorruptError(models.KeyLoanFinalSanction, err)
	}
	if sanction.LoanID == "" {
		sanction.LoanID = models.NewLoanID()
	}

	now := time.Now().UTC()
	record := &models.LoanApplicationRecord{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		LoanID:        sanction.LoanID,
		Principal:     sanction.Amount,
		AnnualRate:    sanction.InterestRate,
		TenureMonths:  sanction.Tenure,
		EMI:           sanction.EMI,
		ProcessingFee: sanction.ProcessingFee,
		NetDisbursal:  sanction.NetDisbursal,
		Status:        models.StatusSanctioned,
		SanctionedAt:  now,
	}

	record.Mobile = h.optional(ctx, applicationID, models.KeyLoanMobile).String("mobile")
	record.FullName = h.optional(ctx, applicationID, models.KeyLoanPAN).String("name")
	record.Email = h.optional(ctx, applicationID, models.KeyLoanBasicDetails).String("email")
	bank := h.optional(ctx, applicationID, models.KeyLoanBankDetails)
	record.BankIFSC = bank.String("ifscCode")
	record.BankAccountLast4 = models.Last4(bank.String("accountNumber"))
	return record, nil
}

// optional loads a draft, treating any failure as empty.
func (h *Handler) optional(ctx context.Context, applicationID, key string) draft.Draft {
	d, _, err := h.drafts.Load(ctx, applicationID, key)
	if err != nil {
		h.logger.Warn("draft unavailable for sanction record", map[string]interface{}{
			"applicationId": applicationID,
			"key":           key,
			"error":         err.Error(),
		})
		return draft.Draft{}
	}
	if d == nil {
		return draft.Draft{}
	}
	return d
}

const insertApplication = `INSERT INTO loan_applications (
	id, application_id, loan_id, mobile, full_name, email, principal, annual_rate,
	tenure_months, emi, processing_fee, net_disbursal, bank_ifsc, bank_account_last4,
	status, sanctioned_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
ON CONFLICT (application_id) DO NOTHING`

const insertAudit = `INSERT INTO audit_log (id, application_id, event, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

// insert writes the row and its audit event in one transaction. It
// reports false when the application was already recorded.
func (h *Handler) insert(ctx context.Context, r *models.LoanApplicationRecord) (bool, error) {
	tx, err := h.db.BeginTx(ctx)
	if err != nil {
		return false, commonerrors.NewDatabaseInsertError(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertApplication,
		r.ID, r.ApplicationID, r.LoanID, r.Mobile, r.FullName, nullable(r.Email),
		r.Principal, r.AnnualRate, r.TenureMonths, r.EMI, r.ProcessingFee, r.NetDisbursal,
		r.BankIFSC, r.BankAccountLast4, r.Status, r.SanctionedAt,
	)
	if err != nil {
		return false, commonerrors.NewDatabaseInsertError(err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"loanId":    r.LoanID,
		"principal": r.Principal,
		"emi":       r.EMI,
		"tenure":    r.TenureMonths,
	})
	if err != nil {
		return false, commonerrors.NewInternalError(err)
	}
	if _, err := tx.ExecContext(ctx, insertAudit, uuid.NewString(), r.ApplicationID, AuditEventSanctioned, payload, r.SanctionedAt); err != nil {
		return false, commonerrors.NewDatabaseInsertError(err)
	}
	if err := tx.Commit(); err != nil {
		return false, commonerrors.NewDatabaseInsertError(err)
	}
	return true, nil
}

const selectApplication = `SELECT id, loan_id, principal, emi, status, sanctioned_at
FROM loan_applications WHERE application_id = $1`

func (h *Handler) existing(ctx context.Context, applicationID string) (*models.LoanApplicationRecord, error) {
	r := &models.LoanApplicationRecord{ApplicationID: applicationID}
	err := h.db.QueryRow(ctx, selectApplication, applicationID).
		Scan(&r.ID, &r.LoanID, &r.Principal, &r.EMI, &r.Status, &r.SanctionedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, commonerrors.NewQueryExecutionError(err)
	}
	return r, nil
}

func (h *Handler) indexRecord(ctx context.Context, r *models.LoanApplicationRecord) {
	if h.index == nil {
		return
	}
	if err := h.index.Index(ctx, h.config.ApplicationsIndex, r.ApplicationID, r); err != nil {
		h.logger.Warn("failed to index sanctioned application", map[string]interface{}{
			"applicationId": r.ApplicationID,
			"error":         err.Error(),
		})
	}
}

// sendLetter mails the sanction letter when enabled and an address is on
// file. Failure never fails the job.
func (h *Handler) sendLetter(ctx context.Context, r *models.LoanApplicationRecord) bool {
	if h.email == nil || !h.config.SendLetter || r.Email == "" {
		return false
	}
	subject := fmt.Sprintf("Your loan %s is sanctioned", r.LoanID)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour personal loan of Rs. %.0f has been sanctioned at %.2f%% p.a. for %d months.\nMonthly EMI: Rs. %.0f\nProcessing fee: Rs. %.0f\nAmount to be disbursed: Rs. %.0f\n\nLoan ID: %s\n",
		displayName(r.FullName), r.Principal, r.AnnualRate, r.TenureMonths, r.EMI, r.ProcessingFee, r.NetDisbursal, r.LoanID,
	)
	_, err := h.email.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{r.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body)},
			},
		},
		Source: awssdk.String(h.config.FromEmail),
	})
	if err != nil {
		h.logger.Warn("failed to send sanction letter", map[string]interface{}{
			"applicationId": r.ApplicationID,
			"error":         err.Error(),
		})
		return false
	}
	return true
}

func displayName(name string) string {
	if name == "" {
		return "Customer"
	}
	return name
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
