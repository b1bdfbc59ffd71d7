package task

// Kind identifies an operation class. At most one task per kind runs at a time.
type Kind string

const (
	KindProgram       Kind = "program"
	KindRegisterRead  Kind = "register_read"
	KindLtssmScan     Kind = "ltssm_scan"
	KindIlaCapture    Kind = "ila_capture"
	KindEyeScan       Kind = "eye_scan"
	KindConnect       Kind = "connect"
	KindRegisterWrite Kind = "register_write"
	KindPcieReset     Kind = "pcie_reset"
	KindLinkSetup     Kind = "link_setup"
	KindDeviceReset   Kind = "device_reset"
	KindSessionReset  Kind = "session_reset"
)

var kindLabels = map[Kind]string{
	KindProgram:       "device programming",
	KindRegisterRead:  "register reading",
	KindLtssmScan:     "LTSSM scan",
	KindIlaCapture:    "ILA capture",
	KindEyeScan:       "eye scan",
	KindConnect:       "connection",
	KindRegisterWrite: "register write",
	KindPcieReset:     "PCIe core reset",
	KindLinkSetup:     "IBERT link setup",
	KindDeviceReset:   "device reset",
	KindSessionReset:  "session reset",
}

// Kinds lists every known kind in display order.
func Kinds() []Kind {
	return []Kind{
		KindConnect,
		KindProgram,
		KindRegisterRead,
		KindRegisterWrite,
		KindLtssmScan,
		KindPcieReset,
		KindIlaCapture,
		KindLinkSetup,
		KindEyeScan,
		KindDeviceReset,
		KindSessionReset,
	}
}

// Label returns the plain-language name used in notifications.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

// Continuous reports whether the kind polls until stopped by default.
func (k Kind) Continuous() bool {
	switch k {
	case KindRegisterRead, KindLtssmScan, KindIlaCapture:
		return true
	default:
		return false
	}
}
