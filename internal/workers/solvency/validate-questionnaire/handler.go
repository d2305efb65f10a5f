// internal/workers/solvency/validate-questionnaire/handler.go
package validatequestionnaire

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/common/metrics"
	"solvency-workers/internal/common/observability"
	"solvency-workers/internal/common/validation"
	"solvency-workers/internal/solvency"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	ozzo "github.com/go-ozzo/ozzo-validation/v4"
)

const TaskType = "validate-solvency-questionnaire"

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
	log.Info("Validating solvency questionnaire", nil)

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

	log.Info("Questionnaire validated", map[string]interface{}{
		"userId":     input.UserID,
		"valid":      output.QuestionnaireValid,
		"errorCount": len(output.ValidationErrors),
	})
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidQuestionnaireInputError(fmt.Sprintf("parse variables: %v", err))
	}

	result, err := inputSchema.Validate(variables)
	if err != nil {
		return nil, errors.NewInvalidQuestionnaireInputError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidQuestionnaireInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	return &Input{
		UserID:  variables["userId"].(string),
		Answers: variables["answers"].(map[string]interface{}),
	}, nil
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	record := Normalize(input.Answers)

	result, err := questionnaireSchema.Validate(record)
	if err != nil {
		return nil, errors.NewInvalidQuestionnaireInputError(err.Error())
	}
	if !result.Valid {
		return invalid(result.Errors), nil
	}

	q, err := decode(record)
	if err != nil {
		if stderrors.Is(err, solvency.ErrMissingIncidentYears) {
			return invalid([]validation.ValidationError{{
				Field: "questionnaire", Message: err.Error(), Code: "REQUIRED_FIELD_MISSING",
			}}), nil
		}
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) {
			return invalid([]validation.ValidationError{outOfRange(typeErr)}), nil
		}
		return nil, errors.NewInternalError(fmt.Errorf("decode normalized questionnaire: %w", err))
	}

	if err := q.Validate(); err != nil {
		var fieldErrs ozzo.Errors
		if !stderrors.As(err, &fieldErrs) {
			return nil, errors.NewInternalError(err)
		}
		return invalid(domainErrors(fieldErrs)), nil
	}

	return &Output{
		QuestionnaireValid: true,
		Questionnaire:      &q,
		ValidationErrors:   []validation.ValidationError{},
	}, nil
}

func decode(record map[string]interface{}) (solvency.Questionnaire, error) {
	var q solvency.Questionnaire
	data, err := json.Marshal(record)
	if err != nil {
		return q, err
	}
	err = json.Unmarshal(data, &q)
	return q, err
}

// outOfRange reports an integer the schema accepted but which does not fit
// the questionnaire's field type.
func outOfRange(typeErr *json.UnmarshalTypeError) validation.ValidationError {
	field := typeErr.Field
	if field == "" {
		field = "questionnaire"
	}
	return validation.ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%s: %s is out of range", field, typeErr.Value),
		Code:    "OUT_OF_RANGE",
	}
}

func invalid(errs []validation.ValidationError) *Output {
	return &Output{
		QuestionnaireValid: false,
		ValidationErrors:   errs,
	}
}

func domainErrors(fieldErrs ozzo.Errors) []validation.ValidationError {
	out := make([]validation.ValidationError, 0, len(fieldErrs))
	for field, err := range fieldErrs {
		code := "INVALID_VALUE"
		var ve ozzo.Error
		if stderrors.As(err, &ve) {
			code = strings.ToUpper(ve.Code())
		}
		out = append(out, validation.ValidationError{Field: field, Message: err.Error(), Code: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
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
