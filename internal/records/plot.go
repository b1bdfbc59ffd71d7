package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoPlot is returned when there is no plot to save yet.
var ErrNoPlot = errors.New("no plot to save")

// SavePlot writes a PNG plot to name, adding the .png extension when missing.
func SavePlot(name string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", ErrNoPlot
	}
	path := strings.TrimSpace(name)
	if path == "" {
		return "", fmt.Errorf("save plot: empty file name")
	}
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		path += ".png"
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("save plot %s: %w", path, err)
	}
	return path, nil
}
