package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/versal-debug/vdbg/internal/sdk"
)

// AppendWaveform appends one row per sample to the CSV at path, writing the probe
// header first when the file is new. It returns the file size afterwards.
func AppendWaveform(path string, wf sdk.Waveform) (size int64, err error) {
	_, statErr := os.Stat(path)
	create := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()

	cw := csv.NewWriter(f)
	if create {
		if err := cw.Write(wf.Probes); err != nil {
			return 0, fmt.Errorf("write header %s: %w", path, err)
		}
	}
	row := make([]string, len(wf.Probes))
	for i := 0; i < wf.Rows(); i++ {
		for col, probe := range wf.Probes {
			row[col] = ""
			if samples := wf.Samples[probe]; i < len(samples) {
				row[col] = strconv.FormatUint(samples[i], 10)
			}
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write %s: %w", path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// FormatSize renders a byte count the way capture sizes are shown.
func FormatSize(size int64) string {
	return fmt.Sprintf("%.3f MegaBytes", float64(size)/(1024*1024))
}
