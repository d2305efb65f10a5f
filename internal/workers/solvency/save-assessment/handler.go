// internal/workers/solvency/save-assessment/handler.go
package saveassessment

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
	"solvency-workers/internal/solvency/cache"
	"solvency-workers/internal/solvency/repository"
	"solvency-workers/internal/solvency/search"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const TaskType = "save-solvency-assessment"

// Dependencies are the stores an assessment is written to. Indexer may be
// nil when rating snapshots are not indexed.
type Dependencies struct {
	Repository    *repository.Repository
	Cache         *cache.RatingCache
	Indexer       *search.Indexer
	Tracing       *observability.Tracing
	Observability *observability.Observability
}

type Handler struct {
	config *Config
	deps   Dependencies
	errors *errors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, deps Dependencies, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		deps:   deps,
		errors: errors.NewErrorHandler(scoped),
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
	log.Info("Saving solvency assessment", nil)

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return
	}

	output, err := h.execute(ctx, input, log)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return
	}

	h.completeJob(client, job, output, log)

	duration := time.Since(startTime)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(duration.Seconds())
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "completed")
	h.deps.Observability.RecordJobDuration(ctx, TaskType, duration, "completed")

	log.Info("Solvency assessment saved", map[string]interface{}{
		"userId":        input.UserID,
		"overallRating": output.Rating.OverallRating,
		"savedAt":       output.RatingSavedAt.Format(time.RFC3339),
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

	switch {
	case input.UserID == "":
		return nil, errors.NewInvalidQuestionnaireInputError("userId is required")
	case input.Questionnaire == nil:
		return nil, errors.NewInvalidQuestionnaireInputError("questionnaire is required")
	case input.Rating == nil:
		return nil, errors.NewInvalidQuestionnaireInputError("rating is required")
	}

	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input, log logger.Logger) (*Output, error) {
	ctx, span := h.deps.Tracing.StartSpan(ctx, "solvency.save_assessment",
		attribute.String("solvency.user_id", input.UserID))
	defer span.End()

	q := *input.Questionnaire
	if err := q.Validate(); err != nil {
		return nil, errors.NewQuestionnaireValidationFailedError(err.Error()).
			WithMetadata("userId", input.UserID)
	}

	rating := solvency.ComputeRating(q)
	if *input.Rating != rating {
		return nil, errors.NewRatingMismatchError(fmt.Sprintf(
			"supplied overall rating %d, questionnaire yields %d", input.Rating.OverallRating, rating.OverallRating,
		)).WithMetadata("userId", input.UserID)
	}
	span.SetAttributes(attribute.Int("solvency.overall_rating", rating.OverallRating))

	savedAt, err := h.deps.Repository.SaveAssessment(ctx, input.UserID, q, rating)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewQueryTimeoutError("save_assessment").WithMetadata("userId", input.UserID)
		}
		return nil, errors.NewDatabaseInsertFailedError(err).WithMetadata("userId", input.UserID)
	}

	metrics.SolvencyOverallRating.Observe(float64(rating.OverallRating))
	h.deps.Observability.RecordRating(ctx, rating.OverallRating, string(q.EmploymentStatus))

	h.refreshCache(ctx, input.UserID, rating, log)
	h.index(ctx, input.UserID, q, rating, savedAt, log)

	return h.readBack(ctx, input.UserID, rating, savedAt, log), nil
}

// refreshCache replaces the cached rating. A stale entry is worse than none,
// so a failed write falls back to deleting the key.
func (h *Handler) refreshCache(ctx context.Context, userID string, rating solvency.Rating, log logger.Logger) {
	if h.deps.Cache == nil {
		return
	}
	err := h.deps.Cache.Set(ctx, userID, rating)
	if err == nil {
		return
	}
	log.Warn("Failed to refresh rating cache", map[string]interface{}{
		"userId": userID,
		"error":  err.Error(),
	})
	if err := h.deps.Cache.Invalidate(ctx, userID); err != nil {
		log.Warn("Failed to invalidate rating cache", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) index(ctx context.Context, userID string, q solvency.Questionnaire, rating solvency.Rating, savedAt time.Time, log logger.Logger) {
	if h.deps.Indexer == nil {
		return
	}
	ctx, span := h.deps.Tracing.StartSpan(ctx, "solvency.index_rating")
	defer span.End()

	if err := h.deps.Indexer.Put(ctx, search.NewRatingDocument(userID, q, rating, savedAt)); err != nil {
		span.RecordError(err)
		log.Warn("Failed to index rating snapshot", map[string]interface{}{
			"userId": userID,
			"index":  h.deps.Indexer.Index(),
			"error":  err.Error(),
		})
	}
}

func (h *Handler) readBack(ctx context.Context, userID string, written solvency.Rating, savedAt time.Time, log logger.Logger) *Output {
	stored, err := h.deps.Repository.GetAssessment(ctx, userID)
	if err != nil {
		log.Warn("Failed to read back saved assessment, returning written rating", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return &Output{Rating: written, RatingSavedAt: savedAt}
	}
	return &Output{Rating: stored.Rating, RatingSavedAt: stored.UpdatedAt}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output, log logger.Logger) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromMap(map[string]interface{}{
			"rating":        output.Rating,
			"ratingSavedAt": output.RatingSavedAt.UTC().Format(time.RFC3339),
		})
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
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "failed")
	h.deps.Observability.RecordJobDuration(ctx, TaskType, time.Since(startTime), "failed")
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input, h.logger)
}
