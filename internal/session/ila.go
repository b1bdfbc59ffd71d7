package session

import (
	"context"
	"fmt"
	"time"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/validate"
)

// MaxProbeTriggers caps the probes a basic trigger can condition on.
const MaxProbeTriggers = 5

// TriggerMode selects how an ILA capture is armed.
type TriggerMode string

const (
	TriggerBasic     TriggerMode = "basic"
	TriggerImmediate TriggerMode = "immediate"
)

// ProbeTrigger is one probe's trigger condition. Operator and Value stay empty until
// SetProbeTrigger is called.
type ProbeTrigger struct {
	Probe    string `yaml:"probe"`
	Operator string `yaml:"operator,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// IlaCores lists discovered ILA core names.
func (f *Facade) IlaCores() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ilas))
	for _, core := range f.ilas {
		names = append(names, core.Name())
	}
	return names
}

// SelectIla makes the named core current and clears the probe trigger list.
func (f *Facade) SelectIla(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, core := range f.ilas {
		if core.Name() == name {
			if core != f.selectedIla {
				f.selectedIla = core
				f.probeTriggers = nil
			}
			return nil
		}
	}
	return faults.Invalid("ila", "unknown ILA core %q", name)
}

// SelectedIla returns the current core name, or "".
func (f *Facade) SelectedIla() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.selectedIla == nil {
		return ""
	}
	return f.selectedIla.Name()
}

// IlaProbes lists the selected core's probes.
func (f *Facade) IlaProbes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.selectedIla == nil {
		return nil
	}
	return f.selectedIla.Probes()
}

// IlaDataDepth returns the selected core's sample depth, or 0.
func (f *Facade) IlaDataDepth() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.selectedIla == nil {
		return 0
	}
	return f.selectedIla.DataDepth()
}

// AddProbeTrigger adds probe to the trigger list. Adding a probe already listed is a
// no-op; a sixth probe fails with ErrTooManyProbes.
func (f *Facade) AddProbeTrigger(probe string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectedIla == nil {
		return ErrNoIlaSelected
	}
	if !contains(f.selectedIla.Probes(), probe) {
		return faults.Invalid("probe", "%q is not a probe of %s", probe, f.selectedIla.Name())
	}
	for _, existing := range f.probeTriggers {
		if existing.Probe == probe {
			return nil
		}
	}
	if len(f.probeTriggers) >= MaxProbeTriggers {
		return faults.ErrTooManyProbes
	}
	f.probeTriggers = append(f.probeTriggers, ProbeTrigger{Probe: probe})
	return nil
}

// RemoveProbeTrigger drops probe from the trigger list.
func (f *Facade) RemoveProbeTrigger(probe string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.probeTriggers[:0]
	for _, existing := range f.probeTriggers {
		if existing.Probe != probe {
			kept = append(kept, existing)
		}
	}
	f.probeTriggers = kept
}

// SetProbeTrigger records the condition for a listed probe. The condition reaches the
// core when the next basic trigger is armed.
func (f *Facade) SetProbeTrigger(probe, operator, value string) error {
	if err := validate.ProbeCondition(operator, value); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.probeTriggers {
		if f.probeTriggers[i].Probe == probe {
			f.probeTriggers[i].Operator = operator
			f.probeTriggers[i].Value = value
			return nil
		}
	}
	return faults.Invalid("probe", "%q is not in the trigger list", probe)
}

// ProbeTriggers returns the trigger list in insertion order.
func (f *Facade) ProbeTriggers() []ProbeTrigger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ProbeTrigger(nil), f.probeTriggers...)
}

// ArmIla arms the selected core. Basic mode first applies every configured probe
// condition.
func (f *Facade) ArmIla(ctx context.Context, mode TriggerMode, settings sdk.TriggerSettings) error {
	f.mu.RLock()
	core := f.selectedIla
	triggers := append([]ProbeTrigger(nil), f.probeTriggers...)
	f.mu.RUnlock()
	if core == nil {
		return ErrNoIlaSelected
	}

	switch mode {
	case TriggerImmediate:
		if err := core.RunTriggerImmediately(ctx, settings); err != nil {
			return faults.Device("ILA immediate trigger", err)
		}
	case TriggerBasic:
		for _, trigger := range triggers {
			if trigger.Operator == "" {
				continue
			}
			if err := core.SetProbeTriggerValue(trigger.Probe, trigger.Operator, trigger.Value); err != nil {
				return faults.Device(fmt.Sprintf("set trigger on %s", trigger.Probe), err)
			}
		}
		if err := core.RunBasicTrigger(ctx, settings); err != nil {
			return faults.Device("ILA basic trigger", err)
		}
	default:
		return faults.Invalid("trigger_mode", "unknown trigger mode %q", mode)
	}
	return nil
}

// MonitorIla waits up to maxWait for the armed core, reporting intermediate status.
func (f *Facade) MonitorIla(ctx context.Context, maxWait time.Duration, onProgress func(sdk.IlaStatus)) (sdk.IlaStatus, error) {
	f.mu.RLock()
	core := f.selectedIla
	f.mu.RUnlock()
	if core == nil {
		return sdk.IlaStatus{}, ErrNoIlaSelected
	}
	status, err := core.MonitorStatus(ctx, maxWait, onProgress)
	if err != nil {
		return sdk.IlaStatus{}, faults.Device("ILA monitor", err)
	}
	return status, nil
}

// UploadIla uploads the completed capture and returns its waveform.
func (f *Facade) UploadIla(ctx context.Context) (sdk.Waveform, error) {
	f.mu.RLock()
	core := f.selectedIla
	f.mu.RUnlock()
	if core == nil {
		return sdk.Waveform{}, ErrNoIlaSelected
	}
	if err := core.Upload(ctx); err != nil {
		return sdk.Waveform{}, faults.Device("ILA upload", err)
	}
	wf, err := core.Waveform()
	if err != nil {
		return sdk.Waveform{}, faults.Device("ILA waveform", err)
	}
	return wf, nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
