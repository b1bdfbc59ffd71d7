package components

import (
	"strings"
	"testing"

	"github.com/versal-debug/vdbg/internal/render"
)

func TestRenderStatusBadgeVariants(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status string
		want   string
	}{
		{status: "idle", want: "○ IDLE"},
		{status: "running", want: "● RUNNING"},
		{status: "stopping", want: "◌ STOPPING"},
		{status: "done", want: "✓ DONE"},
		{status: "failed", want: "✗ FAILED"},
		{status: "  armed ", want: "⚠ ARMED"},
		{status: "", want: "⚠ UNKNOWN"},
	}
	for _, testCase := range testCases {
		if rendered := RenderStatusBadge(testCase.status); !strings.Contains(rendered, testCase.want) {
			t.Fatalf("badge for %q = %q, want %q", testCase.status, rendered, testCase.want)
		}
	}

	if rendered := RenderStatusBadge("running", WithBadgeIcon(false), WithBadgeBold(true)); strings.Contains(rendered, "●") {
		t.Fatalf("expected icon to be omitted, got %q", rendered)
	}
}

func TestBadgeStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		activity render.Activity
		stopping bool
		want     string
	}{
		{activity: render.Activity{}, want: "idle"},
		{activity: render.Activity{Running: true}, want: "running"},
		{activity: render.Activity{Running: true}, stopping: true, want: "stopping"},
		{activity: render.Activity{Failed: true}, want: "failed"},
		{activity: render.Activity{Status: "done"}, want: "done"},
	}
	for _, testCase := range testCases {
		if got := BadgeStatus(testCase.activity, testCase.stopping); got != testCase.want {
			t.Fatalf("BadgeStatus(%+v, %v) = %q, want %q", testCase.activity, testCase.stopping, got, testCase.want)
		}
	}
}
