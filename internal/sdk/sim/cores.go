package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/versal-debug/vdbg/internal/sdk"
)

// ltssmSequence is the state walk a healthy link takes to L0.
var ltssmSequence = []uint8{0x00, 0x01, 0x02, 0x03, 0x04, 0x06, 0x08, 0x09, 0x0A, 0x0B, 0x10}

type pcieCore struct {
	sim     *Simulator
	mu      sync.Mutex
	history []uint8
}

func (p *pcieCore) Name() string { return "PCIe_0" }

func (p *pcieCore) Refresh(ctx context.Context) error {
	if err := p.sim.enter(ctx, OpPcieRefresh); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) < len(ltssmSequence) {
		p.history = append(p.history, ltssmSequence[len(p.history)])
	}
	return nil
}

func (p *pcieCore) Plot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	values := make([]float64, len(p.history))
	for i, state := range p.history {
		values[i] = float64(state) / float64(ltssmSequence[len(ltssmSequence)-1])
	}
	p.mu.Unlock()
	return barChartPNG(values)
}

func (p *pcieCore) Reset(ctx context.Context) error {
	if err := p.sim.enter(ctx, OpPcieReset); err != nil {
		return err
	}
	p.mu.Lock()
	p.history = nil
	p.mu.Unlock()
	return nil
}

type ilaCore struct {
	sim  *Simulator
	name string

	mu       sync.Mutex
	triggers map[string][2]string
	armed    bool
	settings sdk.TriggerSettings
	monitors int
	captured int
	uploaded bool
	captures int
}

func newIlaCore(s *Simulator, name string) *ilaCore {
	return &ilaCore{sim: s, name: name, triggers: map[string][2]string{}}
}

func (c *ilaCore) Name() string { return c.name }

func (c *ilaCore) Probes() []string { return append([]string(nil), c.sim.opts.Probes...) }

func (c *ilaCore) DataDepth() int { return c.sim.opts.DataDepth }

func (c *ilaCore) SetProbeTriggerValue(probe, operator, value string) error {
	for _, known := range c.sim.opts.Probes {
		if known == probe {
			c.mu.Lock()
			c.triggers[probe] = [2]string{operator, value}
			c.mu.Unlock()
			return nil
		}
	}
	return errors.New("unknown probe " + probe)
}

func (c *ilaCore) RunBasicTrigger(ctx context.Context, settings sdk.TriggerSettings) error {
	return c.arm(ctx, settings, false)
}

func (c *ilaCore) RunTriggerImmediately(ctx context.Context, settings sdk.TriggerSettings) error {
	return c.arm(ctx, settings, true)
}

func (c *ilaCore) arm(ctx context.Context, settings sdk.TriggerSettings, immediate bool) error {
	if err := c.sim.enter(ctx, OpIlaArm); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	c.settings = settings
	c.monitors = 0
	c.captured = 0
	c.uploaded = false
	if immediate {
		c.captured = c.requestedLocked()
	}
	return nil
}

func (c *ilaCore) MonitorStatus(ctx context.Context, maxWait time.Duration, onProgress func(sdk.IlaStatus)) (sdk.IlaStatus, error) {
	if err := c.sim.enter(ctx, OpIlaMonitor); err != nil {
		return sdk.IlaStatus{}, err
	}
	wait := c.sim.opts.Latency
	if maxWait > 0 && maxWait < wait {
		wait = maxWait
	}
	if err := c.sim.sleep(ctx, wait); err != nil {
		return sdk.IlaStatus{}, err
	}

	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return sdk.IlaStatus{CaptureState: "IDLE"}, nil
	}
	c.monitors++
	requested := c.requestedLocked()
	after := c.sim.opts.CaptureAfter
	c.captured = requested * c.monitors / after
	if c.captured > requested {
		c.captured = requested
	}
	status := sdk.IlaStatus{
		CaptureState:     "ARMED",
		SamplesRequested: requested,
		SamplesCaptured:  c.captured,
		Captured:         c.monitors >= after,
	}
	if status.Captured {
		status.CaptureState = "FULL"
	}
	c.mu.Unlock()

	if onProgress != nil {
		onProgress(status)
	}
	return status, nil
}

func (c *ilaCore) Upload(ctx context.Context) error {
	if err := c.sim.enter(ctx, OpIlaUpload); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed || c.captured < c.requestedLocked() {
		return errors.New("no completed capture to upload")
	}
	c.uploaded = true
	c.captures++
	return nil
}

func (c *ilaCore) Waveform() (sdk.Waveform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.uploaded {
		return sdk.Waveform{}, errors.New("waveform not uploaded")
	}
	rows := c.requestedLocked()
	probes := c.sim.opts.Probes
	wf := sdk.Waveform{Probes: append([]string(nil), probes...), Samples: map[string][]uint64{}}
	base := uint64(c.captures * rows)
	for p, probe := range probes {
		samples := make([]uint64, rows)
		for i := range samples {
			samples[i] = (base + uint64(i)) >> uint(p) & 0xFF
		}
		wf.Samples[probe] = samples
	}
	return wf, nil
}

func (c *ilaCore) requestedLocked() int {
	if c.settings.WindowCount > 0 && c.settings.WindowSize > 0 {
		return c.settings.WindowCount * c.settings.WindowSize
	}
	return c.sim.opts.DataDepth
}

type eyeScan struct {
	sim  *Simulator
	name string

	// deliver serializes callback delivery with Start so a superseded sweep cannot
	// report once the next one has begun.
	deliver sync.Mutex

	mu         sync.Mutex
	params     sdk.EyeScanParams
	status     string
	onProgress []func(float64)
	onDone     []func()
	runs       int
	stop       chan struct{}
	stopOnce   sync.Once
}

func newEyeScan(s *Simulator, name string) *eyeScan {
	return &eyeScan{sim: s, name: name, status: sdk.EyeScanNotStarted, stop: make(chan struct{})}
}

func (e *eyeScan) Name() string { return e.name }

func (e *eyeScan) SetParams(params sdk.EyeScanParams) error {
	if params.HorizontalStep <= 0 || params.VerticalStep <= 0 {
		return errors.New("eye scan steps must be positive")
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	return nil
}

func (e *eyeScan) OnProgress(fn func(percent float64)) {
	e.mu.Lock()
	e.onProgress = append(e.onProgress, fn)
	e.mu.Unlock()
}

func (e *eyeScan) OnDone(fn func()) {
	e.mu.Lock()
	e.onDone = append(e.onDone, fn)
	e.mu.Unlock()
}

func (e *eyeScan) Start(ctx context.Context) error {
	if err := e.sim.enter(ctx, OpEyeScanStart); err != nil {
		return err
	}
	e.deliver.Lock()
	e.mu.Lock()
	e.status = sdk.EyeScanInProgress
	e.runs++
	run := e.runs
	e.mu.Unlock()
	e.deliver.Unlock()
	go e.run(run)
	return nil
}

// run sweeps the eye. Starting the scan again supersedes the sweep in flight, which
// then exits without reporting anything.
func (e *eyeScan) run(run int) {
	steps := e.sim.opts.EyeScanSteps
	for step := 1; step <= steps; step++ {
		timer := time.NewTimer(e.sim.opts.EyeScanStepDelay)
		select {
		case <-e.stop:
			timer.Stop()
			e.settle(run, sdk.EyeScanStopped)
			return
		case <-timer.C:
		}
		percent := float64(step) * 100 / float64(steps)
		if !e.progress(run, percent) {
			return
		}
	}
	e.settle(run, sdk.EyeScanDone)
}

func (e *eyeScan) progress(run int, percent float64) bool {
	e.deliver.Lock()
	defer e.deliver.Unlock()
	e.mu.Lock()
	if e.runs != run {
		e.mu.Unlock()
		return false
	}
	callbacks := append([]func(float64){}, e.onProgress...)
	e.mu.Unlock()
	for _, fn := range callbacks {
		fn(percent)
	}
	return true
}

func (e *eyeScan) settle(run int, status string) {
	e.deliver.Lock()
	defer e.deliver.Unlock()
	e.mu.Lock()
	if e.runs != run {
		e.mu.Unlock()
		return
	}
	e.status = status
	callbacks := append([]func(){}, e.onDone...)
	e.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (e *eyeScan) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *eyeScan) Plot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != sdk.EyeScanDone {
		return nil, errors.New("eye scan has not completed")
	}
	steps := e.params.HorizontalStep
	if steps <= 0 {
		steps = 2
	}
	return eyeDiagramPNG(32/steps+8, 24)
}

func (e *eyeScan) halt() {
	e.stopOnce.Do(func() { close(e.stop) })
}

