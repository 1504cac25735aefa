package ifsclookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/database"
	commonerrors "loan-funnel-workers/internal/common/errors"
	commonhttp "loan-funnel-workers/internal/common/http"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "loan.ifsc.lookup"

// BranchIndex is the Elasticsearch side: a read-through cache of branches.
type BranchIndex interface {
	Search(ctx context.Context, index string, query map[string]interface{}, size int) ([]database.SearchHit, error)
	Index(ctx context.Context, index, id string, doc interface{}) error
}

// Directory fetches one JSON document over HTTP.
type Directory interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// Sessions reports where an application is in its flow.
type Sessions interface {
	Current(ctx context.Context, applicationID string) (*flow.Session, *flow.Step, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
	obs          *observability.Observability
	index        BranchIndex
	directory    Directory
	drafts       draft.Store
	sessions     Sessions
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Logger        logger.Logger
	Observability *observability.Observability
	Index         BranchIndex
	Directory     Directory
	Drafts        draft.Store
	Sessions      Sessions
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for loan-ifsc-lookup: %w", err)
	}
	if opts.Drafts != nil && opts.Sessions == nil {
		return nil, fmt.Errorf("loan-ifsc-lookup needs sessions to merge drafts")
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
		index:        opts.Index,
		directory:    opts.Directory,
		drafts:       opts.Drafts,
		sessions:     opts.Sessions,
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
	code := validation.NormalizeIFSC(input.IFSC)
	if !validation.IsValidIFSC(code) {
		return nil, commonerrors.NewFieldValidationError(map[string]string{"ifscCode": validation.MessageFor("ifsc")})
	}

	branch, source, err := h.resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	out := &Output{IFSC: code, BankName: branch.Bank, BranchName: branch.Branch, Source: source}

	if input.ApplicationID != "" && h.drafts != nil {
		merged, err := h.merge(ctx, input.ApplicationID, out)
		if err != nil {
			return nil, err
		}
		out.Merged = merged
	}
	h.logger.Info("ifsc resolved", map[string]interface{}{
		"ifsc":   code,
		"source": source,
		"merged": out.Merged,
	})
	return out, nil
}

// resolve tries the index, then the directory, then the mock branch.
func (h *Handler) resolve(ctx context.Context, code string) (Branch, string, error) {
	if b, ok := h.fromIndex(ctx, code); ok {
		return b, SourceIndex, nil
	}

	if h.directory != nil && h.config.DirectoryURL != "" {
		var db directoryBranch
		err := h.directory.GetJSON(ctx, h.config.DirectoryURL+"/"+code, &db)
		switch {
		case err == nil:
			b := Branch{IFSC: code, Bank: db.Bank, Branch: db.Branch, City: db.City, State: db.State}
			h.cache(ctx, b)
			return b, SourceDirectory, nil
		case errors.Is(err, commonhttp.ErrNotFound):
			if !h.config.MockFallback {
				return Branch{}, "", commonerrors.NewIFSCNotFoundError(code)
			}
		default:
			if !h.config.MockFallback {
				return Branch{}, "", commonerrors.NewExternalServiceError("ifsc-directory", err)
			}
			h.logger.Warn("ifsc directory unavailable, using mock branch", map[string]interface{}{
				"ifsc":  code,
				"error": err.Error(),
			})
		}
	}

	if !h.config.MockFallback {
		return Branch{}, "", commonerrors.NewIFSCNotFoundError(code)
	}
	b := mockBranch
	b.IFSC = code
	return b, SourceMock, nil
}

// fromIndex treats search failures as a miss.
func (h *Handler) fromIndex(ctx context.Context, code string) (Branch, bool) {
	if h.index == nil {
		return Branch{}, false
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"ifsc": code},
		},
	}
	hits, err := h.index.Search(ctx, h.config.Index, query, 1)
	if err != nil {
		h.logger.Warn("branch index search failed", map[string]interface{}{
			"ifsc":  code,
			"error": err.Error(),
		})
		return Branch{}, false
	}
	if len(hits) == 0 {
		return Branch{}, false
	}
	var b Branch
	if err := json.Unmarshal(hits[0].Source, &b); err != nil || b.Bank == "" {
		return Branch{}, false
	}
	return b, true
}

func (h *Handler) cache(ctx context.Context, b Branch) {
	if h.index == nil {
		return
	}
	if err := h.index.Index(ctx, h.config.Index, b.IFSC, b); err != nil {
		h.logger.Warn("branch index write failed", map[string]interface{}{
			"ifsc":  b.IFSC,
			"error": err.Error(),
		})
	}
}

// merge fills the bank-details draft, keeping what the applicant typed in
// the other fields. An unreadable draft is replaced. Sessions past
// bank-details are left alone so cleared drafts stay cleared.
func (h *Handler) merge(ctx context.Context, applicationID string, out *Output) (bool, error) {
	_, step, err := h.sessions.Current(ctx, applicationID)
	if err != nil {
		return false, err
	}
	if step.ID != flow.StepBankDetails {
		h.logger.Info("session not on bank details, draft not merged", map[string]interface{}{
			"applicationId": applicationID,
			"step":          step.ID,
		})
		return false, nil
	}

	d, _, err := h.drafts.Load(ctx, applicationID, models.KeyLoanBankDetails)
	if err != nil && !errors.Is(err, draft.ErrCorruptDraft) {
		return false, commonerrors.NewDraftStoreError(err)
	}
	if d == nil {
		d = draft.Draft{}
	}
	d = d.Overlay(map[string]interface{}{
		"ifscCode":   out.IFSC,
		"bankName":   out.BankName,
		"branchName": out.BranchName,
	})
	if err := h.drafts.Save(ctx, applicationID, models.KeyLoanBankDetails, d); err != nil {
		return false, commonerrors.NewDraftStoreError(err)
	}
	return true, nil
}
