package invariants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInvariantViolationAddsEventToActiveSpan(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantTeardownComplete, SeverityError, ViolationDetails{
		WhatInvariant: "worker exits before release",
		WhereDetected: "controller.finish",
		WhyViolated:   "worker still running",
		StackTrace:    "trace",
		Additional: map[string]string{
			"kind": "register_read",
		},
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 1)
	assert.Equal(t, "invariant.violation", events[0].Name)
	assert.Equal(t, InvariantTeardownComplete, eventAttr(events[0], "invariant_name"))
	assert.Equal(t, SeverityError, eventAttr(events[0], "severity"))
	assert.Equal(t, "controller.finish", eventAttr(events[0], "where_detected"))
	assert.Equal(t, "register_read", eventAttr(events[0], "context.kind"))
}

func TestInvariantViolationDisabledSkipsEmission(t *testing.T) {
	previous := Enabled()
	SetEnabled(false)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantOneTaskPerKind, SeverityError, ViolationDetails{
		WhereDetected: "controller.start",
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 0)
}

func TestPredefinedInvariantChecksEmitExpectedNames(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	tests := []struct {
		name          string
		wantInvariant string
		run           func(ctx context.Context) bool
	}{
		{
			name:          "one_task_per_kind",
			wantInvariant: InvariantOneTaskPerKind,
			run: func(ctx context.Context) bool {
				return CheckOneTaskPerKind(ctx, "controller.start", "ltssm_scan", false)
			},
		},
		{
			name:          "teardown_complete",
			wantInvariant: InvariantTeardownComplete,
			run: func(ctx context.Context) bool {
				return CheckTeardownComplete(ctx, "controller.finish", "ila_capture", errors.New("context deadline exceeded"))
			},
		},
		{
			name:          "resource_released",
			wantInvariant: InvariantResourceReleased,
			run: func(ctx context.Context) bool {
				return CheckResourceReleased(ctx, "session.reset", "IBERT links", errors.New("hw_server gone"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, restore := installTracerProvider()
			defer restore()

			ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
			assert.False(t, tt.run(ctx))
			span.End()

			events := spanEventsByName(recorder, "operation")
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantInvariant, eventAttr(events[0], "invariant_name"))
		})
	}
}

func TestCheckResourceReleasedUsesWarnSeverity(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	assert.False(t, CheckResourceReleased(ctx, "session.reset", "session", errors.New("close failed")))
	assert.True(t, CheckResourceReleased(ctx, "session.reset", "session", nil))
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 1)
	assert.Equal(t, SeverityWarn, eventAttr(events[0], "severity"))
	assert.Equal(t, "session", eventAttr(events[0], "context.resource"))
}

func TestViolationWithoutSpanCreatesOne(t *testing.T) {
	recorder, restore := installTracerProvider()
	defer restore()

	assert.False(t, CheckTeardownComplete(context.Background(), "controller.teardownAll", "eye_scan", errors.New("timeout")))

	events := spanEventsByName(recorder, "invariant.violation")
	require.Len(t, events, 1)
	assert.Equal(t, InvariantTeardownComplete, eventAttr(events[0], "invariant_name"))
}

func installTracerProvider() (*tracetest.SpanRecorder, func()) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	return recorder, func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			otel.Handle(err)
		}
		otel.SetTracerProvider(previous)
	}
}

func spanEventsByName(recorder *tracetest.SpanRecorder, spanName string) []sdktrace.Event {
	for _, finished := range recorder.Ended() {
		if finished.Name() != spanName {
			continue
		}
		return finished.Events()
	}
	return nil
}

func eventAttr(event sdktrace.Event, key string) string {
	for _, attr := range event.Attributes {
		if string(attr.Key) != key {
			continue
		}
		return attr.Value.AsString()
	}
	return ""
}
