// Package ops holds the device operations tasks run on their workers. Each operation
// talks to the device only through the session facade and reports through its handle.
package ops

import (
	"fmt"

	"github.com/versal-debug/vdbg/internal/sdk"
)

// RegisterReading is one formatted register value.
type RegisterReading struct {
	Address uint64
	Value   uint64
	Hex     string
	Bin     string
}

// NewRegisterReading zero-pads value to the access width.
func NewRegisterReading(address, value uint64, size sdk.Size) RegisterReading {
	width := size.Bits()
	return RegisterReading{
		Address: address,
		Value:   value,
		Hex:     fmt.Sprintf("0x%0*x", width/4, value),
		Bin:     fmt.Sprintf("%0*b", width, value),
	}
}

// AddressHex renders the address like the history export does.
func (r RegisterReading) AddressHex() string {
	return fmt.Sprintf("%#x", r.Address)
}

// RegisterSnapshot is one pass over every configured address.
type RegisterSnapshot struct {
	Readings []RegisterReading
}

// RecordsSaved names the history files written when a register read stopped.
type RecordsSaved struct {
	CSV  string
	HTML string
}

// WriteResult reports one address written.
type WriteResult struct {
	Address uint64
	Values  []uint64
}

// LtssmFrame is one refreshed LTSSM plot.
type LtssmFrame struct {
	PNG []byte
}

// IlaFrame is one uploaded capture. FileSize is set when samples were appended to a
// CSV file.
type IlaFrame struct {
	Capture  int
	Waveform sdk.Waveform
	CSV      string
	FileSize string
}

// EyeScanProgress reports one scan's progress callback.
type EyeScanProgress struct {
	Index   int
	Name    string
	Percent int
	Status  string
}

// EyeScanResult is one completed scan with its plot.
type EyeScanResult struct {
	Index  int
	Name   string
	Status string
	PNG    []byte
}

// PcieResetDone reports a completed PCIe core reset.
type PcieResetDone struct{}

// DeviceResetDone reports a completed device reset.
type DeviceResetDone struct{}

// SessionResetDone reports that a detached session was released.
type SessionResetDone struct{}
