package stepcontinue

import (
	"context"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/flow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "funnel.step.continue"

type Handler struct {
	config       *Config
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
	obs          *observability.Observability
	ctrl         *flow.Controller
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Logger        logger.Logger
	Observability *observability.Observability
	Controller    *flow.Controller
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for funnel-step-continue: %w", err)
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
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
		ctrl:         opts.Controller,
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

// execute fails with FIELD_VALIDATION_FAILED, carrying the inline messages
// in the "fields" error variable, when the step's draft does not pass.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	tr, err := h.ctrl.Continue(ctx, input.ApplicationID, input.Fields, input.ExpectedStep)
	if err != nil {
		if fe := flow.FieldErrors(err); fe != nil {
			h.logger.Info("step input rejected", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"fields":        len(fe),
			})
		}
		return nil, err
	}
	return &Output{
		ApplicationID: input.ApplicationID,
		FromStep:      tr.From,
		CurrentStep:   tr.To,
		Route:         tr.View.Route,
		Ordinal:       tr.View.Ordinal,
		FlowCompleted: tr.View.Completed,
	}, nil
}
