package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

const defaultProgressBarWidth = 24

// ProgressVariant controls the colors of a progress bar.
type ProgressVariant string

const (
	ProgressRunning ProgressVariant = "running"
	ProgressDone    ProgressVariant = "done"
	ProgressFailed  ProgressVariant = "failed"
	ProgressIdle    ProgressVariant = "idle"
)

// ProgressBarConfig contains all rendering inputs for one operation's bar.
type ProgressBarConfig struct {
	Label   string
	Percent float64
	Status  string
	Width   int
	Variant ProgressVariant
}

// RenderProgressBar renders "Label [bar] NN% status" using bubbles/progress.
func RenderProgressBar(config ProgressBarConfig) string {
	width := config.Width
	if width <= 0 {
		width = defaultProgressBarWidth
	}
	percent := math.Max(0, math.Min(100, config.Percent))

	bar := newProgressModel(width, config.Variant).ViewAs(percent / 100)
	if config.Variant == ProgressIdle {
		bar = lipgloss.NewStyle().Faint(true).Render(bar)
	}

	line := fmt.Sprintf("%s [%s] %3d%%", config.Label, bar, int(math.Round(percent)))
	if status := strings.TrimSpace(config.Status); status != "" {
		line += " " + status
	}
	return line
}

// ProgressVariantFor picks the bar variant for an activity.
func ProgressVariantFor(activity render.Activity) ProgressVariant {
	switch {
	case activity.Failed:
		return ProgressFailed
	case activity.Running:
		return ProgressRunning
	case activity.Status == "done":
		return ProgressDone
	default:
		return ProgressIdle
	}
}

func newProgressModel(width int, variant ProgressVariant) progress.Model {
	options := []progress.Option{
		progress.WithWidth(width),
		progress.WithoutPercentage(),
		progress.WithFillCharacters('#', '.'),
	}
	switch variant {
	case ProgressDone:
		options = append(options, progress.WithSolidFill(theme.Healthy))
	case ProgressFailed:
		options = append(options, progress.WithSolidFill(theme.Fault))
	case ProgressIdle:
		options = append(options, progress.WithSolidFill(theme.Slate))
	default:
		options = append(options, progress.WithScaledGradient(theme.Amber, theme.Gold))
	}
	return progress.New(options...)
}

// ProgressSpring eases a displayed percentage toward the last reported one, so bars
// do not jump when progress arrives in bursts.
type ProgressSpring struct {
	spring   harmonica.Spring
	position float64
	velocity float64
	target   float64
}

// NewProgressSpring builds a critically damped spring stepped at fps frames per second.
func NewProgressSpring(fps int) *ProgressSpring {
	if fps <= 0 {
		fps = 30
	}
	return &ProgressSpring{spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0)}
}

// SetTarget moves the equilibrium. A target below the current position snaps, since
// progress only goes backwards when a new run starts.
func (s *ProgressSpring) SetTarget(percent float64) {
	s.target = percent
	if percent < s.position {
		s.position, s.velocity = percent, 0
	}
}

// Step advances one frame and returns the displayed value.
func (s *ProgressSpring) Step() float64 {
	if s.Settled() {
		return s.position
	}
	s.position, s.velocity = s.spring.Update(s.position, s.velocity, s.target)
	if math.Abs(s.target-s.position) < 0.1 && math.Abs(s.velocity) < 0.1 {
		s.position, s.velocity = s.target, 0
	}
	return s.position
}

// Value returns the displayed value without advancing.
func (s *ProgressSpring) Value() float64 { return s.position }

// Settled reports whether the spring rests on its target.
func (s *ProgressSpring) Settled() bool {
	return s.position == s.target && s.velocity == 0
}
