package disbursalcomplete

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/database"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "loan.disbursal.complete"

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
	obs          *observability.Observability
	db           *database.PostgresClient
	drafts       draft.Store
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Logger        logger.Logger
	Observability *observability.Observability
	DB            *database.PostgresClient
	Drafts        draft.Store
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for loan-disbursal-complete: %w", err)
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

const lockApplication = `SELECT loan_id, status, disbursed_at FROM loan_applications
WHERE application_id = $1 FOR UPDATE`

const markDisbursed = `UPDATE loan_applications
SET status = $2, disbursed_at = $3, updated_at = $3
WHERE application_id = $1`

const insertAudit = `INSERT INTO audit_log (id, application_id, event, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	out, err := h.disburse(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	// Drafts go once the money has moved; a retry after a partial clear
	// finds the row already disbursed and clears again.
	if h.config.ClearDrafts {
		keys := models.LoanDraftKeys()
		if err := h.drafts.Clear(ctx, input.ApplicationID, keys...); err != nil {
			return nil, commonerrors.NewDraftStoreError(err)
		}
		out.ClearedKeys = keys
	}

	h.logger.Info("disbursal completed", map[string]interface{}{
		"applicationId":    input.ApplicationID,
		"loanId":           out.LoanID,
		"alreadyDisbursed": out.AlreadyDisbursed,
	})
	return out, nil
}

func (h *Handler) disburse(ctx context.Context, applicationID string) (*Output, error) {
	tx, err := h.db.BeginTx(ctx)
	if err != nil {
		return nil, commonerrors.NewQueryExecutionError(err)
	}
	defer tx.Rollback()

	var (
		loanID      string
		status      string
		disbursedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, lockApplication, applicationID).Scan(&loanID, &status, &disbursedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonerrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, commonerrors.NewQueryExecutionError(err)
	}

	if status == models.StatusDisbursed {
		out := &Output{LoanID: loanID, Status: status, AlreadyDisbursed: true}
		if disbursedAt.Valid {
			out.DisbursedAt = disbursedAt.Time
		}
		return out, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, markDisbursed, applicationID, models.StatusDisbursed, now); err != nil {
		return nil, commonerrors.NewQueryExecutionError(err)
	}
	payload, err := json.Marshal(map[string]interface{}{"loanId": loanID, "previousStatus": status})
	if err != nil {
		return nil, commonerrors.NewInternalError(err)
	}
	if _, err := tx.ExecContext(ctx, insertAudit, uuid.NewString(), applicationID, AuditEventDisbursed, payload, now); err != nil {
		return nil, commonerrors.NewDatabaseInsertError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, commonerrors.NewQueryExecutionError(err)
	}
	return &Output{LoanID: loanID, Status: models.StatusDisbursed, DisbursedAt: now}, nil
}
