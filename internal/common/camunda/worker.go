// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every task worker.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions tune one job worker.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for opts.TaskType. Closing the Zeebe client
// stays with the caller, which shares it between workers.
func NewWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *CamundaWorker {
	builder := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(handler.Handle).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	w := &CamundaWorker{
		worker:   builder.Open(),
		logger:   log.WithFields(map[string]interface{}{"taskType": opts.TaskType}),
		taskType: opts.TaskType,
	}
	w.logger.Info("worker started", map[string]interface{}{"maxJobsActive": opts.MaxJobsActive})
	return w
}

func (w *CamundaWorker) TaskType() string {
	return w.taskType
}

func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// DecodeVariables unmarshals the job variables into v.
func DecodeVariables(job entities.Job, v interface{}) error {
	if job.Variables == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(job.Variables), v); err != nil {
		return fmt.Errorf("parse job variables: %w", err)
	}
	return nil
}

// VariablesMap returns the job variables as a generic map for schema checks.
func VariablesMap(job entities.Job) (map[string]interface{}, error) {
	vars := map[string]interface{}{}
	if job.Variables == "" {
		return vars, nil
	}
	if err := json.Unmarshal([]byte(job.Variables), &vars); err != nil {
		return nil, fmt.Errorf("parse job variables: %w", err)
	}
	return vars, nil
}

// ParseInput checks the job variables against schema and decodes them into
// v. Any failure is an INVALID_INPUT error.
func ParseInput(job entities.Job, schema validation.JSONSchema, v interface{}) error {
	vars, err := VariablesMap(job)
	if err != nil {
		return commonerrors.NewInvalidInputError(err.Error())
	}
	if res := validation.ValidateInput(vars, schema); !res.Valid {
		return commonerrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}
	if err := DecodeVariables(job, v); err != nil {
		return commonerrors.NewInvalidInputError(err.Error())
	}
	return nil
}

// CompleteJob completes the job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("encode job output: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("complete job %d: %w", job.Key, err)
	}
	return nil
}
