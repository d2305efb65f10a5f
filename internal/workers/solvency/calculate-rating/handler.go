// internal/workers/solvency/calculate-rating/handler.go
package calculaterating

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/common/metrics"
	"solvency-workers/internal/common/observability"
	"solvency-workers/internal/solvency"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "calculate-solvency-rating"

type Handler struct {
	config *Config
	errors *errors.ErrorHandler
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(config *Config, obs *observability.Observability, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		errors: errors.NewErrorHandler(scoped),
		obs:    obs,
		logger: scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	log := logger.ForJob(h.logger, job)
	log.Info("Calculating solvency rating", nil)

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return
	}

	h.completeJob(client, job, output, log)

	duration := time.Since(startTime)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(duration.Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, duration, "completed")

	log.Info("Solvency rating calculated", map[string]interface{}{
		"userId":        input.UserID,
		"overallRating": output.Rating.OverallRating,
		"duration":      duration.String(),
	})
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		if stderrors.Is(err, solvency.ErrMissingIncidentYears) {
			return nil, errors.NewQuestionnaireValidationFailedError(err.Error())
		}
		return nil, errors.NewInvalidQuestionnaireInputError(fmt.Sprintf("parse variables: %v", err))
	}

	if input.UserID == "" {
		return nil, errors.NewInvalidQuestionnaireInputError("userId is required")
	}
	if input.Questionnaire == nil {
		return nil, errors.NewInvalidQuestionnaireInputError("questionnaire is required")
	}

	return &input, nil
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if err := input.Questionnaire.Validate(); err != nil {
		return nil, errors.NewQuestionnaireValidationFailedError(err.Error()).
			WithMetadata("userId", input.UserID)
	}

	return &Output{Rating: solvency.ComputeRating(*input.Questionnaire)}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output, log logger.Logger) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		log.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		log.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	ctx := context.Background()
	d := h.errors.HandleJobError(ctx, client, job, err)

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, d.BPMN.Code).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(startTime), "failed")
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
