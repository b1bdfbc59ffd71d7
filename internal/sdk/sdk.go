// Package sdk declares the hardware-debug SDK surface the session facade drives: a
// client that opens sessions against hw_server/cs_server, the device behind a session,
// and the debug cores discovered on it. Every method may block on device I/O and is
// only ever called from worker goroutines.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnreachable is returned by Connect when a server does not answer.
	ErrUnreachable = errors.New("server unreachable")
	// ErrVersionMismatch is returned by Connect when the servers speak another protocol version.
	ErrVersionMismatch = errors.New("server protocol version mismatch")
	// ErrNoDevice is returned when the session has no device of the requested family.
	ErrNoDevice = errors.New("no device of requested family")
)

// Size is a memory access width.
type Size string

const (
	SizeByte Size = "b"
	SizeHalf Size = "h"
	SizeWord Size = "w"
)

// Bits returns the access width in bits.
func (s Size) Bits() int {
	switch s {
	case SizeByte:
		return 8
	case SizeHalf:
		return 16
	default:
		return 32
	}
}

// ParseSize accepts "b", "h", "w" or their long names, case-insensitively. Only the
// first letter matters, so labels like "w (Word)" work too.
func ParseSize(value string) (Size, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", fmt.Errorf("empty memory access size")
	}
	switch trimmed[0] {
	case 'b':
		return SizeByte, nil
	case 'h':
		return SizeHalf, nil
	case 'w':
		return SizeWord, nil
	}
	return "", fmt.Errorf("unknown memory access size %q", value)
}

// Client opens sessions.
type Client interface {
	Connect(ctx context.Context, csURL, hwURL string) (Session, error)
}

// Session is one connection to the debug servers.
type Session interface {
	Device(ctx context.Context, family string) (Device, error)
	CreateLinks(ctx context.Context, tx, rx []Endpoint) ([]Link, error)
	DeleteLinks(ctx context.Context, links []Link) error
	CreateEyeScans(ctx context.Context, links []Link) ([]EyeScan, error)
	DeleteEyeScans(ctx context.Context, scans []EyeScan) error
	Close(ctx context.Context) error
}

// DiscoverOptions selects which cores DiscoverAndSetupCores scans for.
type DiscoverOptions struct {
	IbertScan bool
	LtxFile   string
}

// Device is the target chip behind a session.
type Device interface {
	Name() string
	IsProgrammed() bool
	MemoryTargets() []string
	Program(ctx context.Context, file string, progress func(fraction float64)) error
	MemoryRead(ctx context.Context, address uint64, size Size, target string) (uint64, error)
	MemoryWrite(ctx context.Context, address uint64, values []uint64, size Size, target string) error
	DiscoverAndSetupCores(ctx context.Context, opts DiscoverOptions) error
	IbertCores() []IbertCore
	PcieCores() []PcieCore
	IlaCores() []IlaCore
	Reset(ctx context.Context) error
}

// Endpoint is an opaque transceiver TX or RX handle.
type Endpoint struct {
	Handle string
}

// GT is one transceiver.
type GT struct {
	Name string
	TX   Endpoint
	RX   Endpoint
}

// GTGroup is a quad of transceivers.
type GTGroup struct {
	Name string
	GTs  []GT
}

// IbertCore exposes the transceiver layout.
type IbertCore interface {
	Name() string
	GTGroups() []GTGroup
}

// Link pairs a TX and RX endpoint.
type Link interface {
	Name() string
	TX() Endpoint
	RX() Endpoint
}

// EyeScanParams are applied to a scan before it starts.
type EyeScanParams struct {
	HorizontalStep  int
	VerticalStep    int
	HorizontalRange string
	VerticalRange   string
	TargetBER       float64
}

// Eye scan statuses reported by EyeScan.Status.
const (
	EyeScanNotStarted = "Not Started"
	EyeScanInProgress = "In Progress"
	EyeScanDone       = "Done"
	EyeScanStopped    = "Stopped"
)

// EyeScanSettled reports whether status belongs to a sweep that has ended.
func EyeScanSettled(status string) bool {
	return status != EyeScanNotStarted && status != EyeScanInProgress
}

// EyeScan is one eye diagram measurement on a link. Progress and done callbacks are
// invoked from SDK-owned goroutines and stay registered for the life of the scan.
// Start supersedes any sweep in flight: once it returns, Status and the callbacks
// describe the new sweep only.
type EyeScan interface {
	Name() string
	SetParams(params EyeScanParams) error
	OnProgress(fn func(percent float64))
	OnDone(fn func())
	Start(ctx context.Context) error
	Status() string
	Plot(ctx context.Context) ([]byte, error)
}

// PcieCore is the PCIe debug core with its LTSSM trace.
type PcieCore interface {
	Name() string
	Refresh(ctx context.Context) error
	Plot(ctx context.Context) ([]byte, error)
	Reset(ctx context.Context) error
}

// TriggerSettings configure an ILA capture.
type TriggerSettings struct {
	Position    int
	WindowCount int
	WindowSize  int
}

// IlaStatus is a snapshot of an armed ILA.
type IlaStatus struct {
	CaptureState     string
	SamplesRequested int
	SamplesCaptured  int
	Captured         bool
}

// Waveform is an uploaded capture. Probes keeps column order.
type Waveform struct {
	Probes  []string
	Samples map[string][]uint64
}

// Rows returns the number of samples per probe.
func (w Waveform) Rows() int {
	rows := 0
	for _, probe := range w.Probes {
		if n := len(w.Samples[probe]); n > rows {
			rows = n
		}
	}
	return rows
}

// IlaCore is an integrated logic analyzer.
type IlaCore interface {
	Name() string
	Probes() []string
	DataDepth() int
	SetProbeTriggerValue(probe, operator, value string) error
	RunBasicTrigger(ctx context.Context, settings TriggerSettings) error
	RunTriggerImmediately(ctx context.Context, settings TriggerSettings) error
	MonitorStatus(ctx context.Context, maxWait time.Duration, onProgress func(IlaStatus)) (IlaStatus, error)
	Upload(ctx context.Context) error
	Waveform() (Waveform, error)
}
