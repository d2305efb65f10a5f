// internal/workers/solvency/fetch-assessment/handler.go
package fetchassessment

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

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const TaskType = "fetch-solvency-assessment"

type Dependencies struct {
	Repository    *repository.Repository
	Cache         *cache.RatingCache
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

	log.Info("Solvency assessment fetched", map[string]interface{}{
		"userId":       input.UserID,
		"hasRating":    output.HasRating,
		"ratingSource": output.RatingSource,
	})
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, errors.NewInvalidQuestionnaireInputError(fmt.Sprintf("parse variables: %v", err))
	}
	if input.UserID == "" {
		return nil, errors.NewInvalidQuestionnaireInputError("userId is required")
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input, log logger.Logger) (*Output, error) {
	ctx, span := h.deps.Tracing.StartSpan(ctx, "solvency.fetch_assessment",
		attribute.String("solvency.user_id", input.UserID),
		attribute.Bool("solvency.include_questionnaire", input.IncludeQuestionnaire))
	defer span.End()

	var (
		output *Output
		err    error
	)
	if input.IncludeQuestionnaire {
		output, err = h.fetchAssessment(ctx, input.UserID, log)
	} else {
		output, err = h.fetchRating(ctx, input.UserID, log)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("solvency.has_rating", output.HasRating))
	return output, nil
}

// fetchAssessment always reads Postgres; the cache only holds ratings.
func (h *Handler) fetchAssessment(ctx context.Context, userID string, log logger.Logger) (*Output, error) {
	a, err := h.deps.Repository.GetAssessment(ctx, userID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return &Output{HasRating: false}, nil
	}
	if err != nil {
		return nil, h.queryError(ctx, "get_assessment", userID, err)
	}

	h.fillCache(ctx, userID, a.Rating, log)

	return &Output{
		HasRating:       true,
		Rating:          &a.Rating,
		Questionnaire:   &a.Questionnaire,
		RatingSource:    SourceDatabase,
		RatingUpdatedAt: &a.UpdatedAt,
	}, nil
}

func (h *Handler) fetchRating(ctx context.Context, userID string, log logger.Logger) (*Output, error) {
	if h.deps.Cache != nil {
		rating, found, err := h.deps.Cache.Get(ctx, userID)
		switch {
		case err != nil:
			log.Warn("Rating cache unavailable, reading database", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		case found:
			return &Output{HasRating: true, Rating: rating, RatingSource: SourceCache}, nil
		}
	}

	rating, err := h.deps.Repository.GetRating(ctx, userID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return &Output{HasRating: false}, nil
	}
	if err != nil {
		return nil, h.queryError(ctx, "get_rating", userID, err)
	}

	h.fillCache(ctx, userID, *rating, log)

	return &Output{HasRating: true, Rating: rating, RatingSource: SourceDatabase}, nil
}

func (h *Handler) fillCache(ctx context.Context, userID string, rating solvency.Rating, log logger.Logger) {
	if h.deps.Cache == nil {
		return
	}
	filled, err := h.deps.Cache.Fill(ctx, userID, rating)
	if err != nil {
		log.Warn("Failed to fill rating cache", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return
	}
	if !filled {
		log.Debug("Rating cache already populated, keeping entry", map[string]interface{}{
			"userId": userID,
		})
	}
}

func (h *Handler) queryError(ctx context.Context, queryType, userID string, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewQueryTimeoutError(queryType).WithMetadata("userId", userID)
	}
	return errors.NewQueryExecutionFailedError(queryType, err).WithMetadata("userId", userID)
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
	h.deps.Observability.RecordJobProcessed(ctx, TaskType, "failed")
	h.deps.Observability.RecordJobDuration(ctx, TaskType, time.Since(startTime), "failed")
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input, h.logger)
}
