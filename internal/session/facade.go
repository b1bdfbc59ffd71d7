package session

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/versal-debug/vdbg/internal/config"
	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/telemetry/invariants"
)

//nolint:stylecheck // Messages are shown to the operator verbatim.
var (
	ErrNoPcieCore    = errors.New("No PCIe Core found in this design!")
	ErrNoIbertCore   = errors.New("No IBERT Core found in this design!")
	ErrNoIlaSelected = errors.New("No ILA Core selected!")
)

// Option configures Facade construction.
type Option func(*Facade)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Facade) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTracer sets the tracer used for session spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Facade) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// WithDeviceFamily selects which device a session exposes.
func WithDeviceFamily(family string) Option {
	return func(f *Facade) {
		if family = strings.TrimSpace(family); family != "" {
			f.family = family
		}
	}
}

// Info describes the connected device.
type Info struct {
	Device        string   `yaml:"device"`
	Programmed    bool     `yaml:"programmed"`
	MemoryTargets []string `yaml:"memory_targets"`
}

// Discovery reports which cores a discovery pass found. Warnings carry the failures of
// core kinds that could not be discovered.
type Discovery struct {
	Ibert    bool     `yaml:"ibert"`
	Pcie     bool     `yaml:"pcie"`
	Ila      []string `yaml:"ila,omitempty"`
	Warnings []string `yaml:"warnings,omitempty"`
}

// Facade is the only path from tasks to the device. It owns the SDK session, the
// device and every discovered core behind one lock; SDK calls run outside the lock.
type Facade struct {
	client sdk.Client
	family string
	logger *log.Logger
	tracer trace.Tracer

	mu            sync.RWMutex
	hwURL         string
	csURL         string
	sess          sdk.Session
	device        sdk.Device
	memoryTargets []string
	pdiFile       string
	ltxFile       string
	ibert         sdk.IbertCore
	pcie          sdk.PcieCore
	ilas          []sdk.IlaCore
	selectedIla   sdk.IlaCore
	probeTriggers []ProbeTrigger
	links         []sdk.Link
	eyeScans      []sdk.EyeScan
}

// New creates a disconnected facade over client.
func New(client sdk.Client, options ...Option) *Facade {
	f := &Facade{
		client: client,
		family: "versal",
		logger: log.New(io.Discard),
		tracer: otel.Tracer("vdbg/session"),
	}
	for _, option := range options {
		option(f)
	}
	return f
}

// Connect opens a session and looks up the device. HW_SERVER_URL and CS_SERVER_URL
// override the arguments. On failure the facade keeps whatever it had before.
func (f *Facade) Connect(ctx context.Context, hwURL, csURL string) (Info, error) {
	hwURL = resolveURL(config.EnvHWServerURL, hwURL)
	csURL = resolveURL(config.EnvCSServerURL, csURL)

	ctx, span := f.tracer.Start(ctx, "session.connect", trace.WithAttributes(
		attribute.String("hw_server_url", hwURL),
		attribute.String("cs_server_url", csURL),
	))
	defer span.End()

	sess, err := f.client.Connect(ctx, csURL, hwURL)
	if err != nil {
		return Info{}, f.connectFailed(span, hwURL, csURL, err)
	}
	dev, err := sess.Device(ctx, f.family)
	if err != nil {
		if closeErr := sess.Close(ctx); closeErr != nil {
			f.logTeardown(ctx, "session.connect", &faults.ResourceTeardownError{Resource: "half-open session", Err: closeErr})
		}
		return Info{}, f.connectFailed(span, hwURL, csURL, err)
	}

	info := Info{Device: dev.Name(), Programmed: dev.IsProgrammed(), MemoryTargets: dev.MemoryTargets()}

	f.mu.Lock()
	previous := f.sess
	f.resetLocked()
	f.hwURL, f.csURL = hwURL, csURL
	f.sess = sess
	f.device = dev
	f.memoryTargets = info.MemoryTargets
	f.mu.Unlock()

	if previous != nil {
		if err := previous.Close(ctx); err != nil {
			f.logTeardown(ctx, "session.connect", &faults.ResourceTeardownError{Resource: "previous session", Err: err})
		}
	}
	f.logger.Info("connected", "device", info.Device, "hw_server_url", hwURL, "cs_server_url", csURL)
	return info, nil
}

func (f *Facade) connectFailed(span trace.Span, hwURL, csURL string, err error) error {
	connErr := &faults.ConnectionError{HWServerURL: hwURL, CSServerURL: csURL, Err: err}
	span.RecordError(connErr)
	span.SetStatus(codes.Error, connErr.Error())
	f.logger.Warn("connect failed", "error", connErr)
	return connErr
}

// Connected reports whether a session is open.
func (f *Facade) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sess != nil
}

// Refresh re-reads the device and its memory targets. Disconnected, it returns an
// empty Info.
func (f *Facade) Refresh(ctx context.Context) (Info, error) {
	f.mu.RLock()
	sess := f.sess
	f.mu.RUnlock()
	if sess == nil {
		return Info{}, nil
	}

	dev, err := sess.Device(ctx, f.family)
	if err != nil {
		return Info{}, faults.Device("refresh device", err)
	}
	info := Info{Device: dev.Name(), Programmed: dev.IsProgrammed(), MemoryTargets: dev.MemoryTargets()}

	f.mu.Lock()
	if f.sess == sess {
		f.device = dev
		f.memoryTargets = info.MemoryTargets
	}
	f.mu.Unlock()
	return info, nil
}

// MemoryTargets returns the targets reported at connect or refresh.
func (f *Facade) MemoryTargets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.memoryTargets...)
}

// DiscoverCores scans for IBERT unconditionally and for PCIe and ILA cores when a
// probe file is known. A failure for one core kind leaves it absent and is reported
// as a warning; the other kinds are still discovered.
func (f *Facade) DiscoverCores(ctx context.Context) (Discovery, error) {
	f.mu.RLock()
	dev, ltx := f.device, f.ltxFile
	f.mu.RUnlock()
	if dev == nil {
		f.mu.Lock()
		f.clearCoresLocked()
		f.mu.Unlock()
		return Discovery{}, faults.ErrNotConnected
	}

	ctx, span := f.tracer.Start(ctx, "session.discover_cores", trace.WithAttributes(attribute.Bool("ltx", ltx != "")))
	defer span.End()

	var report Discovery
	var ibert sdk.IbertCore
	if err := dev.DiscoverAndSetupCores(ctx, sdk.DiscoverOptions{IbertScan: true}); err != nil {
		report.Warnings = append(report.Warnings, f.discoveryFailed(span, "IBERT discovery", err))
	} else if cores := dev.IbertCores(); len(cores) > 0 {
		ibert = cores[0]
	}

	var pcie sdk.PcieCore
	var ilas []sdk.IlaCore
	if ltx != "" {
		if err := dev.DiscoverAndSetupCores(ctx, sdk.DiscoverOptions{LtxFile: ltx}); err != nil {
			report.Warnings = append(report.Warnings, f.discoveryFailed(span, "PCIe/ILA discovery", err))
		} else {
			if cores := dev.PcieCores(); len(cores) > 0 {
				pcie = cores[0]
			}
			ilas = dev.IlaCores()
		}
	}

	f.mu.Lock()
	f.ibert, f.pcie, f.ilas = ibert, pcie, ilas
	if !containsIla(ilas, f.selectedIla) {
		f.selectedIla = nil
		f.probeTriggers = nil
		if len(ilas) > 0 {
			f.selectedIla = ilas[0]
		}
	}
	f.mu.Unlock()

	report.Ibert = ibert != nil
	report.Pcie = pcie != nil
	for _, core := range ilas {
		report.Ila = append(report.Ila, core.Name())
	}
	return report, nil
}

func (f *Facade) discoveryFailed(span trace.Span, what string, err error) string {
	wrapped := faults.Device(what, err)
	span.RecordError(wrapped)
	f.logger.Warn("core discovery failed", "error", wrapped)
	return wrapped.Error()
}

// ProgramDevice loads pdi onto the device, remembers ltx for later discovery and runs
// DiscoverCores before returning.
func (f *Facade) ProgramDevice(ctx context.Context, pdi, ltx string, progress func(fraction float64)) (Discovery, error) {
	f.mu.RLock()
	dev := f.device
	f.mu.RUnlock()
	if dev == nil {
		return Discovery{}, faults.ErrNotConnected
	}

	ctx, span := f.tracer.Start(ctx, "session.program", trace.WithAttributes(attribute.String("pdi", pdi)))
	defer span.End()

	if err := dev.Program(ctx, pdi, progress); err != nil {
		wrapped := faults.Device("program device", err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return Discovery{}, wrapped
	}

	f.mu.Lock()
	f.pdiFile, f.ltxFile = pdi, ltx
	f.mu.Unlock()
	f.logger.Info("device programmed", "pdi", pdi, "ltx", ltx)

	return f.DiscoverCores(ctx)
}

// ReadRegister reads one memory word.
func (f *Facade) ReadRegister(ctx context.Context, address uint64, size sdk.Size, target string) (uint64, error) {
	dev, err := f.connectedDevice()
	if err != nil {
		return 0, err
	}
	value, err := dev.MemoryRead(ctx, address, size, target)
	if err != nil {
		return 0, faults.Device("memory read", err)
	}
	return value, nil
}

// WriteRegister writes values starting at address.
func (f *Facade) WriteRegister(ctx context.Context, address uint64, values []uint64, size sdk.Size, target string) error {
	dev, err := f.connectedDevice()
	if err != nil {
		return err
	}
	if err := dev.MemoryWrite(ctx, address, values, size, target); err != nil {
		return faults.Device("memory write", err)
	}
	return nil
}

// HasPcie reports whether a PCIe core was discovered.
func (f *Facade) HasPcie() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pcie != nil
}

// RefreshLtssm refreshes the PCIe core and returns its LTSSM plot as PNG.
func (f *Facade) RefreshLtssm(ctx context.Context) ([]byte, error) {
	f.mu.RLock()
	pcie := f.pcie
	f.mu.RUnlock()
	if pcie == nil {
		return nil, ErrNoPcieCore
	}
	if err := pcie.Refresh(ctx); err != nil {
		return nil, faults.Device("PCIe refresh", err)
	}
	plot, err := pcie.Plot(ctx)
	if err != nil {
		return nil, faults.Device("LTSSM plot", err)
	}
	return plot, nil
}

// ResetPcie resets the PCIe core.
func (f *Facade) ResetPcie(ctx context.Context) error {
	f.mu.RLock()
	pcie := f.pcie
	f.mu.RUnlock()
	if pcie == nil {
		return ErrNoPcieCore
	}
	if err := pcie.Reset(ctx); err != nil {
		return faults.Device("PCIe reset", err)
	}
	return nil
}

// ResetDevice resets the chip and then drops every session resource.
func (f *Facade) ResetDevice(ctx context.Context) error {
	dev, err := f.connectedDevice()
	if err != nil {
		return err
	}
	if err := dev.Reset(ctx); err != nil {
		return faults.Device("device reset", err)
	}
	f.ResetToDefault(ctx)
	return nil
}

// Detached holds the device resources taken out of a facade by Detach. They stay open
// on the server until Release runs.
type Detached struct {
	sess  sdk.Session
	links []sdk.Link
	scans []sdk.EyeScan
}

// Empty reports whether there is nothing to release.
func (d Detached) Empty() bool { return d.sess == nil }

// ResetToDefault releases links, then eye scans, then the session. Each release is
// best effort: failures are logged and the facade ends up disconnected regardless.
func (f *Facade) ResetToDefault(ctx context.Context) {
	f.Release(ctx, f.Detach())
}

// Detach empties the facade without any device I/O and hands back what it held. The
// facade is immediately disconnected and can be connected again while the detached
// resources are released elsewhere.
func (f *Facade) Detach() Detached {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := Detached{sess: f.sess, links: f.links, scans: f.eyeScans}
	f.resetLocked()
	f.hwURL, f.csURL = "", ""
	return d
}

// Release deletes the detached links, then eye scans, then closes the session.
func (f *Facade) Release(ctx context.Context, d Detached) {
	if d.sess == nil {
		return
	}
	spanCtx, span := f.tracer.Start(ctx, "session.reset")
	defer span.End()

	if len(d.links) > 0 {
		if err := d.sess.DeleteLinks(ctx, d.links); err != nil {
			f.logTeardown(spanCtx, "session.reset", &faults.ResourceTeardownError{Resource: "IBERT links", Err: err})
		}
	}
	if len(d.scans) > 0 {
		if err := d.sess.DeleteEyeScans(ctx, d.scans); err != nil {
			f.logTeardown(spanCtx, "session.reset", &faults.ResourceTeardownError{Resource: "eye scans", Err: err})
		}
	}
	if err := d.sess.Close(ctx); err != nil {
		f.logTeardown(spanCtx, "session.reset", &faults.ResourceTeardownError{Resource: "session", Err: err})
	}
	f.logger.Info("session reset to default")
}

func (f *Facade) connectedDevice() (sdk.Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.device == nil {
		return nil, faults.ErrNotConnected
	}
	return f.device, nil
}

func (f *Facade) resetLocked() {
	f.sess = nil
	f.device = nil
	f.memoryTargets = nil
	f.pdiFile, f.ltxFile = "", ""
	f.clearCoresLocked()
}

func (f *Facade) clearCoresLocked() {
	f.ibert = nil
	f.pcie = nil
	f.ilas = nil
	f.selectedIla = nil
	f.probeTriggers = nil
	f.links = nil
	f.eyeScans = nil
}

func (f *Facade) logTeardown(ctx context.Context, where string, err *faults.ResourceTeardownError) {
	f.logger.Warn("resource release failed", "resource", err.Resource, "error", err)
	invariants.CheckResourceReleased(ctx, where, err.Resource, err.Err)
}

func resolveURL(envKey, value string) string {
	if override := strings.TrimSpace(os.Getenv(envKey)); override != "" {
		return override
	}
	return strings.TrimSpace(value)
}

func containsIla(cores []sdk.IlaCore, target sdk.IlaCore) bool {
	if target == nil {
		return false
	}
	for _, core := range cores {
		if core == target {
			return true
		}
	}
	return false
}
