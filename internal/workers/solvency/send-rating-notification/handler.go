// internal/workers/solvency/send-rating-notification/handler.go
package sendratingnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solvency-workers/internal/common/aws"
	"solvency-workers/internal/common/errors"
	"solvency-workers/internal/common/logger"
	"solvency-workers/internal/common/metrics"
	"solvency-workers/internal/common/observability"
	"solvency-workers/internal/common/validation"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "send-rating-notification"

type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	email     EmailSender
	publisher EventPublisher
	obs       *observability.Observability
	errors    *errors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
}

// NewHandler wires the delivery clients. Either may be nil when its channel
// is disabled.
func NewHandler(config *Config, email EmailSender, publisher EventPublisher, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	if config.EmailEnabled && (email == nil || config.FromEmail == "") {
		return nil, fmt.Errorf("email notifications enabled without a sender")
	}
	if config.SNSEnabled && (publisher == nil || config.TopicARN == "") {
		return nil, fmt.Errorf("sns notifications enabled without a topic")
	}

	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		email:     email,
		publisher: publisher,
		obs:       obs,
		errors:    errors.NewErrorHandler(scoped),
		logger:    scoped,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
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
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, duration, "completed")

	log.Info("Rating notification processed", map[string]interface{}{
		"userId":         input.UserID,
		"notificationId": output.NotificationID,
		"status":         output.NotificationStatus,
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
	if input.Rating == nil {
		return nil, errors.NewInvalidQuestionnaireInputError("rating is required")
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input, log logger.Logger) (*Output, error) {
	output := &Output{
		NotificationID: uuid.New().String(),
		NotifiedAt:     h.now(),
	}

	output.Deliveries = append(output.Deliveries, h.deliverEmail(ctx, input, log))
	output.Deliveries = append(output.Deliveries, h.publishEvent(ctx, input, output, log))

	var attempted, delivered int
	var firstFailure *Delivery
	for i, d := range output.Deliveries {
		metrics.RatingNotifications.WithLabelValues(d.Channel, d.Status).Inc()
		switch d.Status {
		case StatusSent:
			attempted++
			delivered++
		case StatusFailed:
			attempted++
			if firstFailure == nil {
				firstFailure = &output.Deliveries[i]
			}
		}
	}

	switch {
	case attempted == 0:
		output.NotificationStatus = StatusDisabled
	case firstFailure == nil:
		output.NotificationStatus = StatusSent
	case delivered == 0:
		// nothing reached the user, so a retry cannot duplicate anything
		return nil, errors.NewNotificationSendFailedError(firstFailure.Channel, fmt.Errorf("%s", firstFailure.Error)).
			WithMetadata("userId", input.UserID).
			WithMetadata("notificationId", output.NotificationID)
	default:
		output.NotificationStatus = StatusFailed
	}

	return output, nil
}

func (h *Handler) deliverEmail(ctx context.Context, input *Input, log logger.Logger) Delivery {
	d := Delivery{Channel: ChannelEmail, Status: StatusDisabled}
	if !h.config.EmailEnabled || !wants(input.Channels, ChannelEmail) {
		return d
	}
	if !validation.ValidateEmail(input.RecipientEmail) {
		log.Warn("No valid recipient address, skipping email", map[string]interface{}{
			"userId": input.UserID,
		})
		return d
	}

	text, html, err := renderEmail(*input.Rating)
	if err != nil {
		d.Status, d.Error = StatusFailed, err.Error()
		return d
	}

	res, err := h.email.SendEmail(ctx, aws.TextEmail(h.config.FromEmail, input.RecipientEmail, emailSubject, text, html))
	if err != nil {
		log.Error("email send failed", map[string]interface{}{
			"userId": input.UserID,
			"error":  err.Error(),
		})
		d.Status, d.Error = StatusFailed, err.Error()
		return d
	}

	d.Status = StatusSent
	if res != nil {
		d.MessageID = awssdk.ToString(res.MessageId)
	}
	return d
}

func (h *Handler) publishEvent(ctx context.Context, input *Input, output *Output, log logger.Logger) Delivery {
	d := Delivery{Channel: ChannelSNS, Status: StatusDisabled}
	if !h.config.SNSEnabled || !wants(input.Channels, ChannelSNS) {
		return d
	}

	body, err := json.Marshal(RatingEvent{
		EventType:      EventRatingUpdated,
		NotificationID: output.NotificationID,
		UserID:         input.UserID,
		OverallRating:  input.Rating.OverallRating,
		Rating:         *input.Rating,
		OccurredAt:     output.NotifiedAt,
	})
	if err != nil {
		d.Status, d.Error = StatusFailed, err.Error()
		return d
	}

	res, err := h.publisher.Publish(ctx, aws.EventMessage(h.config.TopicARN, EventRatingUpdated, string(body)))
	if err != nil {
		log.Error("sns publish failed", map[string]interface{}{
			"userId":   input.UserID,
			"topicArn": h.config.TopicARN,
			"error":    err.Error(),
		})
		d.Status, d.Error = StatusFailed, err.Error()
		return d
	}

	d.Status = StatusSent
	if res != nil {
		d.MessageID = awssdk.ToString(res.MessageId)
	}
	return d
}

func wants(channels []string, channel string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if c == channel {
			return true
		}
	}
	return false
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
	return h.execute(ctx, input, h.logger)
}
