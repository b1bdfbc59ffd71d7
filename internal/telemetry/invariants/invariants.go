package invariants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InvariantOneTaskPerKind requires at most one running task per operation kind.
	InvariantOneTaskPerKind = "one_task_per_kind"
	// InvariantTeardownComplete requires a worker to have exited before its kind is released.
	InvariantTeardownComplete = "teardown_complete"
	// InvariantResourceReleased requires links, eye scans and the session to be released on reset.
	InvariantResourceReleased = "resource_released"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var invariantChecksEnabled atomic.Bool

func init() {
	invariantChecksEnabled.Store(true)
}

// ViolationDetails captures invariant violation context for telemetry events.
type ViolationDetails struct {
	WhatInvariant string
	WhereDetected string
	WhyViolated   string
	StackTrace    string
	Additional    map[string]string
}

// SetEnabled globally enables or disables invariant checks.
func SetEnabled(enabled bool) {
	invariantChecksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return invariantChecksEnabled.Load()
}

// InvariantViolation emits an invariant.violation telemetry event on the active span.
// If the context has no active span, a short synthetic span is created for observability.
func InvariantViolation(
	ctx context.Context,
	invariantName string,
	severity string,
	details ViolationDetails,
) {
	if !Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	invariantName = strings.TrimSpace(invariantName)
	if invariantName == "" {
		invariantName = "unknown_invariant"
	}
	severity = normalizeSeverity(severity)

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", severity),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}
	if stack := strings.TrimSpace(details.StackTrace); stack != "" {
		attrs = append(attrs, attribute.String("stack_trace", stack))
	}

	if len(details.Additional) > 0 {
		keys := make([]string, 0, len(details.Additional))
		for key := range details.Additional {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := strings.TrimSpace(details.Additional[key])
			if value == "" {
				continue
			}
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	tracedCtx, temporarySpan := otel.Tracer("vdbg/invariants").Start(ctx, "invariant.violation")
	defer temporarySpan.End()
	temporarySpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
	_ = tracedCtx
}

// CheckOneTaskPerKind validates the one_task_per_kind invariant. claimed is false when
// a kind that looked idle could not be claimed.
func CheckOneTaskPerKind(ctx context.Context, whereDetected string, kind string, claimed bool) bool {
	if claimed {
		return true
	}
	InvariantViolation(ctx, InvariantOneTaskPerKind, SeverityError, ViolationDetails{
		WhatInvariant: "at most one task runs per operation kind",
		WhereDetected: whereDetected,
		WhyViolated:   fmt.Sprintf("kind %s was idle but could not be claimed", kind),
		Additional: map[string]string{
			"kind": kind,
		},
	})
	return false
}

// CheckTeardownComplete validates the teardown_complete invariant. A nil err passes.
func CheckTeardownComplete(ctx context.Context, whereDetected string, kind string, err error) bool {
	if err == nil {
		return true
	}
	InvariantViolation(ctx, InvariantTeardownComplete, SeverityError, ViolationDetails{
		WhatInvariant: "worker exits before its kind is released",
		WhereDetected: whereDetected,
		WhyViolated:   err.Error(),
		Additional: map[string]string{
			"kind": kind,
		},
	})
	return false
}

// CheckResourceReleased validates the resource_released invariant. Release failures
// are warnings because the facade forgets the resource either way.
func CheckResourceReleased(ctx context.Context, whereDetected string, resource string, err error) bool {
	if err == nil {
		return true
	}
	InvariantViolation(ctx, InvariantResourceReleased, SeverityWarn, ViolationDetails{
		WhatInvariant: "device resources are released on reset",
		WhereDetected: whereDetected,
		WhyViolated:   err.Error(),
		Additional: map[string]string{
			"resource": resource,
		},
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	case SeverityError:
		return SeverityError
	default:
		return SeverityError
	}
}
