package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/versal-debug/vdbg/internal/sdk"
)

var errNotProgrammed = errors.New("device is not programmed")

type device struct {
	sim *Simulator
}

func (d *device) Name() string { return d.sim.opts.DeviceName }

func (d *device) IsProgrammed() bool {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	return d.sim.programmed
}

func (d *device) MemoryTargets() []string {
	return append([]string(nil), d.sim.opts.MemoryTargets...)
}

func (d *device) Program(ctx context.Context, file string, progress func(fraction float64)) error {
	if err := d.sim.enter(ctx, OpProgram); err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(file), ".pdi") {
		return fmt.Errorf("program %q: not a PDI image", file)
	}

	d.sim.mu.Lock()
	d.sim.programmed = false
	d.sim.ibert, d.sim.pcie, d.sim.ilas = nil, nil, nil
	d.sim.mu.Unlock()

	steps := d.sim.opts.ProgramSteps
	for step := 1; step <= steps; step++ {
		if err := d.sim.sleep(ctx, d.sim.opts.Latency); err != nil {
			return err
		}
		if progress != nil {
			progress(float64(step) / float64(steps))
		}
	}

	d.sim.mu.Lock()
	d.sim.programmed = true
	d.sim.mu.Unlock()
	return nil
}

func (d *device) MemoryRead(ctx context.Context, address uint64, size sdk.Size, target string) (uint64, error) {
	if err := d.sim.enter(ctx, OpMemoryRead); err != nil {
		return 0, err
	}
	if err := d.checkTarget(target); err != nil {
		return 0, err
	}
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	return d.sim.load(target, address) & mask(size), nil
}

func (d *device) MemoryWrite(ctx context.Context, address uint64, values []uint64, size sdk.Size, target string) error {
	if err := d.sim.enter(ctx, OpMemoryWrite); err != nil {
		return err
	}
	if err := d.checkTarget(target); err != nil {
		return err
	}
	stride := uint64(size.Bits() / 8)
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	for i, value := range values {
		d.sim.store(target, address+uint64(i)*stride, value&mask(size))
	}
	return nil
}

func (d *device) DiscoverAndSetupCores(ctx context.Context, opts sdk.DiscoverOptions) error {
	if opts.IbertScan {
		if err := d.sim.enter(ctx, OpDiscoverIbert); err != nil {
			return err
		}
		d.sim.mu.Lock()
		if d.sim.programmed && d.sim.opts.GTGroups > 0 {
			d.sim.ibert = newIbertCore(d.sim.opts.GTGroups, d.sim.opts.GTsPerGroup)
		}
		d.sim.mu.Unlock()
	}
	if opts.LtxFile == "" {
		return nil
	}

	if err := d.sim.enter(ctx, OpDiscoverCores); err != nil {
		return err
	}
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	if !d.sim.programmed {
		return errNotProgrammed
	}
	d.sim.pcie = &pcieCore{sim: d.sim}
	d.sim.ilas = []*ilaCore{
		newIlaCore(d.sim, "hw_ila_1"),
		newIlaCore(d.sim, "hw_ila_2"),
	}
	return nil
}

func (d *device) IbertCores() []sdk.IbertCore {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	if d.sim.ibert == nil {
		return nil
	}
	return []sdk.IbertCore{d.sim.ibert}
}

func (d *device) PcieCores() []sdk.PcieCore {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	if d.sim.pcie == nil {
		return nil
	}
	return []sdk.PcieCore{d.sim.pcie}
}

func (d *device) IlaCores() []sdk.IlaCore {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	cores := make([]sdk.IlaCore, 0, len(d.sim.ilas))
	for _, core := range d.sim.ilas {
		cores = append(cores, core)
	}
	return cores
}

func (d *device) Reset(ctx context.Context) error {
	if err := d.sim.enter(ctx, OpDeviceReset); err != nil {
		return err
	}
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	d.sim.programmed = false
	d.sim.ibert, d.sim.pcie, d.sim.ilas = nil, nil, nil
	d.sim.memory = map[string]map[uint64]uint64{}
	return nil
}

func (d *device) checkTarget(target string) error {
	for _, known := range d.sim.opts.MemoryTargets {
		if known == target {
			return nil
		}
	}
	return fmt.Errorf("unknown memory target %q", target)
}

func mask(size sdk.Size) uint64 {
	return (uint64(1) << size.Bits()) - 1
}

type ibertCore struct {
	groups []sdk.GTGroup
}

func newIbertCore(groups, perGroup int) *ibertCore {
	core := &ibertCore{}
	for g := 0; g < groups; g++ {
		group := sdk.GTGroup{Name: fmt.Sprintf("Quad_%d", 103+g)}
		for n := 0; n < perGroup; n++ {
			name := fmt.Sprintf("CH_%d", n)
			group.GTs = append(group.GTs, sdk.GT{
				Name: name,
				TX:   sdk.Endpoint{Handle: fmt.Sprintf("%s/%s/TX", group.Name, name)},
				RX:   sdk.Endpoint{Handle: fmt.Sprintf("%s/%s/RX", group.Name, name)},
			})
		}
		core.groups = append(core.groups, group)
	}
	return core
}

func (c *ibertCore) Name() string { return "IBERT" }

func (c *ibertCore) GTGroups() []sdk.GTGroup {
	return append([]sdk.GTGroup(nil), c.groups...)
}
