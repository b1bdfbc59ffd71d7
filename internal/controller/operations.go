package controller

import (
	"strings"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/records"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/session"
	"github.com/versal-debug/vdbg/internal/task"
	"github.com/versal-debug/vdbg/internal/validate"
)

// RegisterReadRequest is the raw operator input for a register read.
type RegisterReadRequest struct {
	Addresses   string
	Size        string
	Target      string
	SingleShot  bool
	RecordsFile string
}

// RegisterWriteRequest is the raw operator input for a register write.
type RegisterWriteRequest struct {
	Addresses string
	Values    string
	Size      string
	Target    string
}

// IlaRequest is the raw operator input for an ILA capture.
type IlaRequest struct {
	Mode            session.TriggerMode
	WindowCount     string
	DataDepth       string
	TriggerPosition string
	SingleShot      bool
	CSV             string
}

// EyeScanRequest overrides the configured eye scan parameters. Zero fields keep the
// configured value.
type EyeScanRequest struct {
	HorizontalStep  int
	VerticalStep    int
	HorizontalRange string
	VerticalRange   string
	TargetBER       float64
}

// Connect opens a session. Empty URLs fall back to the configuration.
func (c *Controller) Connect(hwURL, csURL string) (string, error) {
	return c.start(task.KindConnect, func() (task.Operation, error) {
		hw, cs := c.cfg.ResolveServers(hwURL, csURL)
		if hw == "" || cs == "" {
			return nil, &faults.ValidationError{Field: "server", Message: "Both hw_server and cs_server URLs are required!"}
		}
		return ops.Connect(c.facade, hw, cs), nil
	})
}

// Program loads pdi and, when ltx is set, discovers PCIe and ILA cores with it.
func (c *Controller) Program(pdi, ltx string) (string, error) {
	return c.start(task.KindProgram, func() (task.Operation, error) {
		if !c.facade.Connected() {
			return nil, faults.ErrNotConnected
		}
		if err := validate.ProgrammingFiles(pdi, ltx); err != nil {
			return nil, err
		}
		return &ops.Program{Facade: c.facade, PDI: strings.TrimSpace(pdi), LTX: strings.TrimSpace(ltx)}, nil
	})
}

// ReadRegisters polls registers until stopped, or once with SingleShot.
func (c *Controller) ReadRegisters(req RegisterReadRequest) (string, error) {
	return c.start(task.KindRegisterRead, func() (task.Operation, error) {
		addresses, size, err := c.memoryAccess(req.Addresses, req.Size, req.Target)
		if err != nil {
			return nil, err
		}
		return &ops.RegisterRead{
			Facade:      c.facade,
			Addresses:   addresses,
			Size:        size,
			Target:      req.Target,
			Interval:    c.cfg.RegisterPollInterval,
			SingleShot:  req.SingleShot,
			RecordsFile: strings.TrimSpace(req.RecordsFile),
			History:     records.NewHistory(records.WithJournal(c.journal)),
		}, nil
	})
}

// WriteRegisters writes the values to every address.
func (c *Controller) WriteRegisters(req RegisterWriteRequest) (string, error) {
	return c.start(task.KindRegisterWrite, func() (task.Operation, error) {
		addresses, size, err := c.memoryAccess(req.Addresses, req.Size, req.Target)
		if err != nil {
			return nil, err
		}
		values, err := validate.WriteValues(req.Values)
		if err != nil {
			return nil, err
		}
		return &ops.RegisterWrite{Facade: c.facade, Addresses: addresses, Values: values, Size: size, Target: req.Target}, nil
	})
}

func (c *Controller) memoryAccess(addressInput, sizeInput, target string) ([]uint64, sdk.Size, error) {
	if !c.facade.Connected() {
		return nil, "", faults.ErrNotConnected
	}
	addresses, err := validate.Addresses(addressInput)
	if err != nil {
		return nil, "", err
	}
	size, err := validate.Size(sizeInput)
	if err != nil {
		return nil, "", err
	}
	if err := validate.MemoryTarget(target, c.facade.MemoryTargets()); err != nil {
		return nil, "", err
	}
	return addresses, size, nil
}

// ScanLtssm refreshes the LTSSM plot until stopped. A design without a PCIe core
// fails inside the task so the operator sees the usual notification.
func (c *Controller) ScanLtssm(singleShot bool) (string, error) {
	return c.start(task.KindLtssmScan, func() (task.Operation, error) {
		return &ops.LtssmScan{Facade: c.facade, Interval: c.cfg.LtssmPollInterval, SingleShot: singleShot}, nil
	})
}

// ResetPcie resets the PCIe core.
func (c *Controller) ResetPcie() (string, error) {
	return c.start(task.KindPcieReset, func() (task.Operation, error) {
		return ops.PcieReset(c.facade), nil
	})
}

// CaptureIla arms the selected ILA with its configured probe triggers.
func (c *Controller) CaptureIla(req IlaRequest) (string, error) {
	return c.start(task.KindIlaCapture, func() (task.Operation, error) {
		if c.facade.SelectedIla() == "" {
			return nil, session.ErrNoIlaSelected
		}
		mode := req.Mode
		if mode == "" {
			mode = session.TriggerBasic
		}
		if mode != session.TriggerBasic && mode != session.TriggerImmediate {
			return nil, faults.Invalid("trigger_mode", "unknown trigger mode %q", mode)
		}
		settings, err := validate.IlaSettings(req.WindowCount, req.DataDepth, req.TriggerPosition)
		if err != nil {
			return nil, err
		}
		return &ops.IlaCapture{
			Facade:     c.facade,
			Mode:       mode,
			Settings:   settings,
			SingleShot: req.SingleShot,
			CSV:        validate.CSVPath(req.CSV),
			Interval:   c.cfg.IlaPollInterval,
			MaxWait:    c.cfg.IlaMonitorMaxWait,
		}, nil
	})
}

// SetupLinks creates one IBERT link and eye scan per transceiver.
func (c *Controller) SetupLinks() (string, error) {
	return c.start(task.KindLinkSetup, func() (task.Operation, error) {
		if !c.facade.Connected() {
			return nil, faults.ErrNotConnected
		}
		return ops.LinkSetup(c.facade), nil
	})
}

// StartEyeScans runs every eye scan created by SetupLinks.
func (c *Controller) StartEyeScans(req EyeScanRequest) (string, error) {
	return c.start(task.KindEyeScan, func() (task.Operation, error) {
		params := c.eyeScanParams(req)
		if params.HorizontalStep <= 0 || params.VerticalStep <= 0 {
			return nil, faults.Invalid("step", "eye scan steps must be positive")
		}
		if params.TargetBER <= 0 || params.TargetBER >= 1 {
			return nil, faults.Invalid("target_ber", "must be between 0 and 1")
		}
		return &ops.EyeScan{Facade: c.facade, Params: params}, nil
	})
}

func (c *Controller) eyeScanParams(req EyeScanRequest) sdk.EyeScanParams {
	defaults := c.cfg.EyeScan
	params := sdk.EyeScanParams{
		HorizontalStep:  defaults.HorizontalStep,
		VerticalStep:    defaults.VerticalStep,
		HorizontalRange: defaults.HorizontalRange,
		VerticalRange:   defaults.VerticalRange,
		TargetBER:       defaults.TargetBER,
	}
	if req.HorizontalStep != 0 {
		params.HorizontalStep = req.HorizontalStep
	}
	if req.VerticalStep != 0 {
		params.VerticalStep = req.VerticalStep
	}
	if req.HorizontalRange != "" {
		params.HorizontalRange = req.HorizontalRange
	}
	if req.VerticalRange != "" {
		params.VerticalRange = req.VerticalRange
	}
	if req.TargetBER != 0 {
		params.TargetBER = req.TargetBER
	}
	return params
}

// ResetDevice resets the chip and drops the session.
func (c *Controller) ResetDevice() (string, error) {
	return c.start(task.KindDeviceReset, func() (task.Operation, error) {
		if !c.facade.Connected() {
			return nil, faults.ErrNotConnected
		}
		return ops.DeviceReset(c.facade), nil
	})
}
