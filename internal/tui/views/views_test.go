package views

import (
	"strings"
	"testing"

	"github.com/versal-debug/vdbg/internal/ops"
	"github.com/versal-debug/vdbg/internal/render"
	"github.com/versal-debug/vdbg/internal/sdk"
	"github.com/versal-debug/vdbg/internal/session"
)

func TestRenderSessionShowsDeviceAndWarnings(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderSession(SessionConfig{
		Width:     140,
		Form:      "hw_server: TCP:localhost:3121",
		Connected: true,
		Info:      session.Info{Device: "xcvc1902", Programmed: true, MemoryTargets: []string{"DPC", "APU"}},
		Discovery: session.Discovery{Pcie: true, Ila: []string{"hw_ila_1"}, Warnings: []string{"IBERT discovery: timed out"}},
	}))
	for _, expected := range []string{"connected", "xcvc1902", "DPC APU", "hw_ila_1", "IBERT discovery: timed out", "TCP:localhost:3121"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("session tab missing %q\n%s", expected, rendered)
		}
	}
}

func TestRenderRegistersTable(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderRegisters(RegistersConfig{
		Width:       160,
		Readings:    []ops.RegisterReading{ops.NewRegisterReading(0xFCA50E90, 1, sdk.SizeWord)},
		Written:     []ops.WriteResult{{Address: 0xF7212C0C, Values: []uint64{0x2}}},
		RecordsHTML: "phy.html",
	}))
	for _, expected := range []string{"0xfca50e90", "0x00000001", "00000000000000000000000000000001", "phy.html", "0xf7212c0c <- 0x2"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("register tab missing %q\n%s", expected, rendered)
		}
	}
}

func TestRenderPcieWithoutCore(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderPcie(PcieConfig{Width: 80}))
	if !strings.Contains(rendered, "none") || !strings.Contains(rendered, "LTSSM frames: 0") {
		t.Fatalf("unexpected pcie tab\n%s", rendered)
	}
}

func TestRenderIlaCaptureAndTriggers(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderIla(IlaConfig{
		Width:    160,
		Cores:    []string{"hw_ila_1", "hw_ila_2"},
		Selected: "hw_ila_2",
		Mode:     session.TriggerBasic,
		Triggers: []session.ProbeTrigger{{Probe: "counter", Operator: "==", Value: "1"}, {Probe: "fsm_state"}},
		Capture: render.IlaView{
			Status:   "FULL",
			Fill:     100,
			Captures: 2,
			Probes:   []string{"counter"},
			Rows:     [][]string{{"7"}},
		},
	}))
	for _, expected := range []string{"▸ hw_ila_2", "counter == 1", "fsm_state (no condition)", "TRIGGER (BASIC)", "FULL", "Captures: 2", "counter"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("ila tab missing %q\n%s", expected, rendered)
		}
	}
}

func TestRenderIbertScans(t *testing.T) {
	t.Parallel()

	rendered := stripANSI(RenderIbert(IbertConfig{
		Width: 160,
		Links: []string{"Link_0", "Link_1"},
		Scans: []render.EyeScanView{
			{Name: "EyeScan_Link_0", Percent: 100, Status: "Done", PNG: []byte("png")},
			{Name: "EyeScan_Link_1", Percent: 40, Status: "In Progress"},
		},
	}))
	for _, expected := range []string{"Link_0 Link_1", "EyeScan_Link_0 plot 3 B", "100% Done", " 40% In Progress"} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("ibert tab missing %q\n%s", expected, rendered)
		}
	}

	empty := stripANSI(RenderIbert(IbertConfig{Width: 80, Compact: true}))
	if !strings.Contains(empty, "Set up links") {
		t.Fatalf("empty ibert tab should prompt for link setup\n%s", empty)
	}
}
