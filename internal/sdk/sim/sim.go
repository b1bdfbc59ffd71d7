// Package sim is an in-process hardware-debug backend. It models one Versal board
// reachable through any non-empty server URL pair: a memory map, programming with
// progress, IBERT transceivers with eye scans, a PCIe core with an LTSSM trace and ILA
// cores. Hooks let tests fail or block any call.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/versal-debug/vdbg/internal/sdk"
)

// Call operations passed to Hook.
const (
	OpConnect        = "connect"
	OpDevice         = "device"
	OpProgram        = "program"
	OpMemoryRead     = "memory_read"
	OpMemoryWrite    = "memory_write"
	OpDiscoverIbert  = "discover_ibert"
	OpDiscoverCores  = "discover_cores"
	OpDeviceReset    = "device_reset"
	OpPcieRefresh    = "pcie_refresh"
	OpPcieReset      = "pcie_reset"
	OpIlaArm         = "ila_arm"
	OpIlaMonitor     = "ila_monitor"
	OpIlaUpload      = "ila_upload"
	OpCreateLinks    = "create_links"
	OpDeleteLinks    = "delete_links"
	OpCreateEyeScans = "create_eye_scans"
	OpDeleteEyeScans = "delete_eye_scans"
	OpEyeScanStart   = "eye_scan_start"
	OpSessionClose   = "session_close"
)

// Call identifies one SDK call. N counts calls of the same Op, starting at 1.
type Call struct {
	Op string
	N  int
}

// Hook runs before every simulated call. A non-nil error fails the call.
type Hook func(ctx context.Context, call Call) error

// Options shape the simulated board. A negative GTGroups builds a design without IBERT.
type Options struct {
	DeviceName       string
	Latency          time.Duration
	ProgramSteps     int
	MemoryTargets    []string
	Probes           []string
	DataDepth        int
	CaptureAfter     int
	GTGroups         int
	GTsPerGroup      int
	EyeScanSteps     int
	EyeScanStepDelay time.Duration
	Hook             Hook
}

// DefaultOptions describe a VCK190-like board.
func DefaultOptions() Options {
	return Options{
		DeviceName:       "xcvc1902",
		Latency:          time.Millisecond,
		ProgramSteps:     10,
		MemoryTargets:    []string{"DPC", "APU", "RPU", "PPU", "PSM", "PMC"},
		Probes:           []string{"axi_araddr", "axi_arvalid", "axi_rdata", "axi_rvalid", "counter", "fsm_state", "trigger_in"},
		DataDepth:        1024,
		CaptureAfter:     2,
		GTGroups:         2,
		GTsPerGroup:      4,
		EyeScanSteps:     5,
		EyeScanStepDelay: 2 * time.Millisecond,
	}
}

// Simulator implements sdk.Client. Device state outlives sessions, like a real board.
type Simulator struct {
	opts Options

	mu         sync.Mutex
	calls      map[string]int
	memory     map[string]map[uint64]uint64
	programmed bool
	ibert      *ibertCore
	pcie       *pcieCore
	ilas       []*ilaCore
	sessions   []*session
}

// New creates a simulator. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Simulator {
	defaults := DefaultOptions()
	if opts.DeviceName == "" {
		opts.DeviceName = defaults.DeviceName
	}
	if opts.ProgramSteps <= 0 {
		opts.ProgramSteps = defaults.ProgramSteps
	}
	if len(opts.MemoryTargets) == 0 {
		opts.MemoryTargets = defaults.MemoryTargets
	}
	if len(opts.Probes) == 0 {
		opts.Probes = defaults.Probes
	}
	if opts.DataDepth <= 0 {
		opts.DataDepth = defaults.DataDepth
	}
	if opts.CaptureAfter <= 0 {
		opts.CaptureAfter = defaults.CaptureAfter
	}
	switch {
	case opts.GTGroups == 0:
		opts.GTGroups = defaults.GTGroups
	case opts.GTGroups < 0:
		opts.GTGroups = 0
	}
	if opts.GTsPerGroup <= 0 {
		opts.GTsPerGroup = defaults.GTsPerGroup
	}
	if opts.EyeScanSteps <= 0 {
		opts.EyeScanSteps = defaults.EyeScanSteps
	}
	return &Simulator{
		opts:   opts,
		calls:  map[string]int{},
		memory: map[string]map[uint64]uint64{},
	}
}

// Calls reports how many times op was invoked.
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// OpenSessions reports sessions not yet closed.
func (s *Simulator) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := 0
	for _, sess := range s.sessions {
		if !sess.closed {
			open++
		}
	}
	return open
}

// Poke sets a memory word without going through a session.
func (s *Simulator) Poke(target string, address, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(target, address, value)
}

// Connect opens a session. Empty URLs are unreachable.
func (s *Simulator) Connect(ctx context.Context, csURL, hwURL string) (sdk.Session, error) {
	if err := s.enter(ctx, OpConnect); err != nil {
		return nil, err
	}
	if strings.TrimSpace(csURL) == "" || strings.TrimSpace(hwURL) == "" {
		return nil, fmt.Errorf("%w: empty server url", sdk.ErrUnreachable)
	}
	sess := &session{sim: s, csURL: csURL, hwURL: hwURL}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()
	return sess, nil
}

// enter counts the call, runs the hook and applies latency.
func (s *Simulator) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	n := s.calls[op]
	hook := s.opts.Hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, Call{Op: op, N: n}); err != nil {
			return err
		}
	}
	return s.sleep(ctx, s.opts.Latency)
}

func (s *Simulator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) store(target string, address, value uint64) {
	words, ok := s.memory[target]
	if !ok {
		words = map[uint64]uint64{}
		s.memory[target] = words
	}
	words[address] = value
}

func (s *Simulator) load(target string, address uint64) uint64 {
	if value, ok := s.memory[target][address]; ok {
		return value
	}
	// Unwritten words read back a stable pattern derived from the address.
	return (address*2654435761 ^ address>>7) & 0xFFFFFFFF
}

type session struct {
	sim    *Simulator
	csURL  string
	hwURL  string
	closed bool
	links  []*link
	scans  []*eyeScan
}

func (ss *session) Device(ctx context.Context, family string) (sdk.Device, error) {
	if err := ss.sim.enter(ctx, OpDevice); err != nil {
		return nil, err
	}
	if family != "" && !strings.EqualFold(family, "versal") {
		return nil, fmt.Errorf("%w: %s", sdk.ErrNoDevice, family)
	}
	return &device{sim: ss.sim}, nil
}

func (ss *session) CreateLinks(ctx context.Context, tx, rx []sdk.Endpoint) ([]sdk.Link, error) {
	if err := ss.sim.enter(ctx, OpCreateLinks); err != nil {
		return nil, err
	}
	if len(tx) != len(rx) {
		return nil, fmt.Errorf("create links: %d tx endpoints for %d rx endpoints", len(tx), len(rx))
	}
	created := make([]sdk.Link, 0, len(tx))
	ss.sim.mu.Lock()
	for i := range tx {
		l := &link{name: fmt.Sprintf("Link_%d", len(ss.links)), tx: tx[i], rx: rx[i]}
		ss.links = append(ss.links, l)
		created = append(created, l)
	}
	ss.sim.mu.Unlock()
	return created, nil
}

func (ss *session) DeleteLinks(ctx context.Context, links []sdk.Link) error {
	if err := ss.sim.enter(ctx, OpDeleteLinks); err != nil {
		return err
	}
	ss.sim.mu.Lock()
	defer ss.sim.mu.Unlock()
	remaining := ss.links[:0]
	for _, l := range ss.links {
		if !containsLink(links, l) {
			remaining = append(remaining, l)
		}
	}
	ss.links = remaining
	return nil
}

func (ss *session) CreateEyeScans(ctx context.Context, links []sdk.Link) ([]sdk.EyeScan, error) {
	if err := ss.sim.enter(ctx, OpCreateEyeScans); err != nil {
		return nil, err
	}
	created := make([]sdk.EyeScan, 0, len(links))
	ss.sim.mu.Lock()
	for _, l := range links {
		scan := newEyeScan(ss.sim, fmt.Sprintf("EyeScan_%s", l.Name()))
		ss.scans = append(ss.scans, scan)
		created = append(created, scan)
	}
	ss.sim.mu.Unlock()
	return created, nil
}

func (ss *session) DeleteEyeScans(ctx context.Context, scans []sdk.EyeScan) error {
	if err := ss.sim.enter(ctx, OpDeleteEyeScans); err != nil {
		return err
	}
	for _, scan := range scans {
		if es, ok := scan.(*eyeScan); ok {
			es.halt()
		}
	}
	return nil
}

func (ss *session) Close(ctx context.Context) error {
	if err := ss.sim.enter(ctx, OpSessionClose); err != nil {
		return err
	}
	ss.sim.mu.Lock()
	scans := append([]*eyeScan(nil), ss.scans...)
	ss.closed = true
	ss.scans = nil
	ss.links = nil
	ss.sim.mu.Unlock()
	for _, scan := range scans {
		scan.halt()
	}
	return nil
}

type link struct {
	name string
	tx   sdk.Endpoint
	rx   sdk.Endpoint
}

func (l *link) Name() string     { return l.name }
func (l *link) TX() sdk.Endpoint { return l.tx }
func (l *link) RX() sdk.Endpoint { return l.rx }

func containsLink(links []sdk.Link, target *link) bool {
	for _, l := range links {
		if l == sdk.Link(target) {
			return true
		}
	}
	return false
}
