package views

import (
	"fmt"
	"strings"

	"github.com/versal-debug/vdbg/internal/tui/theme"
)

// PcieConfig holds the PCIe tab's inputs.
type PcieConfig struct {
	Width   int
	HasPcie bool
	Frames  int
	Plot    []byte
	Saved   string
}

// RenderPcie draws the LTSSM tab. Plots are PNG images; the tab reports their size
// and where the last one was saved.
func RenderPcie(config PcieConfig) string {
	lines := []string{keyValue("PCIe core", yesNo(config.HasPcie))}
	if !config.HasPcie {
		lines = append(lines, theme.MutedStyle.Render("Program the device with a probe file to discover the PCIe core."))
	}
	lines = append(lines, keyValue("LTSSM frames", fmt.Sprintf("%d", config.Frames)))
	if len(config.Plot) > 0 {
		lines = append(lines, keyValue("Latest plot", byteSize(len(config.Plot))))
	}
	if config.Saved != "" {
		lines = append(lines, keyValue("Saved", config.Saved))
	}
	return Panel("LTSSM", strings.Join(lines, "\n"), config.Width, true)
}
