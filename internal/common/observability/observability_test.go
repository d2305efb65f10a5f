package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewTracing_NoEndpointIsNoop(t *testing.T) {
	tr, err := NewTracing("solvency-workers", "", 1)
	require.NoError(t, err)

	ctx, span := tr.StartSpan(context.Background(), "repository.SaveAssessment",
		attribute.String("userId", "7f1c0a52-8d1b-4d7e-9a55-1b2c3d4e5f60"))
	defer span.End()

	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracing_WithCollectorEndpoint(t *testing.T) {
	tr, err := NewTracing("solvency-workers", "http://127.0.0.1:14268/api/traces", 1)
	require.NoError(t, err)

	_, span := tr.StartSpan(context.Background(), "cache.Get")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = tr.Shutdown(ctx)
}

func TestNilTracingIsSafe(t *testing.T) {
	var tr *Tracing
	_, span := tr.StartSpan(context.Background(), "noop")
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestObservability_Records(t *testing.T) {
	o := New("solvency-workers-test")
	ctx := context.Background()

	o.RecordJobProcessed(ctx, "calculate-solvency-rating", "completed")
	o.RecordJobDuration(ctx, "calculate-solvency-rating", 12*time.Millisecond, "completed")
	o.RecordRating(ctx, 91, "employed")

	assert.NoError(t, o.Shutdown(ctx))

	var nilObs *Observability
	nilObs.RecordJobProcessed(ctx, "x", "failed")
	assert.NoError(t, nilObs.Shutdown(ctx))
}
