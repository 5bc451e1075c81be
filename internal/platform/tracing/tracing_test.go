package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartWithoutProviderIsSafe(t *testing.T) {
	ctx, end := Start(context.Background(), "lifecycle", "SetStatus", attribute.String("shelter.id", "x"))
	assert.NotNil(t, trace.SpanFromContext(ctx))

	err := errors.New("boom")
	assert.NotPanics(t, func() { end(&err) })
	assert.NotPanics(t, func() { end(nil) })
}
