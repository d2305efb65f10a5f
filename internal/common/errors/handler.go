package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler handles job errors with standardized error handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decision is the outcome of classifying a job error.
type Decision struct {
	Error *StandardError
	BPMN  *BPMNError
	// Retry is true when the job should be failed back to the broker with
	// RetriesLeft remaining, false when a BPMN error is thrown instead.
	Retry       bool
	RetriesLeft int32
}

// Decide classifies err for a job that has job.Retries attempts left.
func Decide(job entities.Job, err error) Decision {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	d := Decision{Error: stdErr, BPMN: bpmnErr}
	if bpmnErr.Retries > 0 && job.GetRetries() > 1 {
		d.Retry = true
		d.RetriesLeft = min(job.GetRetries()-1, int32(bpmnErr.Retries))
	}
	return d
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HandleJobError handles any error in a worker job
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) Decision {
	d := Decide(job, err)
	h.logError(job, d)

	if d.Retry {
		h.failJobWithRetries(ctx, client, job, d)
	} else {
		h.throwBPMNError(ctx, client, job, d.BPMN)
	}
	return d
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, d Decision) {
	cmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(d.RetriesLeft).
		ErrorMessage("[" + d.BPMN.Code + "] " + d.BPMN.Message)

	withVars, err := cmd.VariablesFromMap(d.BPMN.ToErrorVariables())
	if err != nil {
		h.sendFailed(job, "fail", err)
		if _, err := cmd.Send(ctx); err != nil {
			h.sendFailed(job, "fail", err)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.sendFailed(job, "fail", err)
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.GetKey()).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		h.sendFailed(job, "throw", err)
		if _, err := cmd.Send(ctx); err != nil {
			h.sendFailed(job, "throw", err)
		}
		return
	}
	withVars, err := cmd.VariablesFromString(string(varsJSON))
	if err != nil {
		h.sendFailed(job, "throw", err)
		if _, err := cmd.Send(ctx); err != nil {
			h.sendFailed(job, "throw", err)
		}
		return
	}
	if _, err := withVars.Send(ctx); err != nil {
		h.sendFailed(job, "throw", err)
	}
}

func (h *ErrorHandler) sendFailed(job entities.Job, command string, err error) {
	h.logger.Error("Failed to send job error command", map[string]interface{}{
		"jobKey":  job.GetKey(),
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, d Decision) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.GetKey(),
		"jobType":          job.GetType(),
		"errorCode":        string(d.Error.Code),
		"bpmnErrorCode":    d.BPMN.Code,
		"message":          d.BPMN.Message,
		"details":          d.Error.Details,
		"retryable":        d.Error.Retryable,
		"retry":            d.Retry,
		"retriesLeft":      d.RetriesLeft,
		"errorCategory":    GetErrorCategory(d.Error.Code),
		"workflowInstance": job.GetProcessInstanceKey(),
	})
}
