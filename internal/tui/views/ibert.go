package views

import (
	"strings"

	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/tui/components"
	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// IbertConfig holds the IBERT tab's inputs.
type IbertConfig struct {
	Width   int
	Compact bool
	Form    string
	Links   []string
	Scans   []render.EyeScanView
	Saved   string
}

// RenderIbert draws link setup and one progress bar per eye scan.
func RenderIbert(config IbertConfig) string {
	half := config.Width / 2
	if config.Compact {
		half = config.Width
	}

	lines := make([]string, 0, len(config.Scans)+1)
	for _, scan := range config.Scans {
		variant := components.ProgressRunning
		switch {
		case scan.PNG != nil || scan.Status == sdk.EyeScanDone:
			variant = components.ProgressDone
		case scan.Percent == 0:
			variant = components.ProgressIdle
		}
		label := scan.Name
		if scan.PNG != nil {
			label += " " + theme.SuccessStyle.Render("plot "+byteSize(len(scan.PNG)))
		}
		lines = append(lines, components.RenderProgressBar(components.ProgressBarConfig{
			Label:   label,
			Percent: float64(scan.Percent),
			Status:  scan.Status,
			Width:   max(10, half/3),
			Variant: variant,
		}))
	}
	if len(lines) == 0 {
		lines = append(lines, theme.MutedStyle.Render("Set up links to create one eye scan per transceiver"))
	}
	if config.Saved != "" {
		lines = append(lines, keyValue("Saved", config.Saved))
	}

	links := strings.Join(config.Links, " ")
	setup := Panel("Links", keyValue("Links", links)+"\n\n"+config.Form, half, true)
	return SideBySide(setup, Panel("Eye scans", strings.Join(lines, "\n"), half, false), config.Compact)
}
