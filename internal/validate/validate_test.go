package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
)

func TestHexListSeparators(t *testing.T) {
	values, err := HexList("addresses", "0xF721200C, F721240C\nf721280c   0XF7212C0C")
	require.NoError(t, err)
	assert.Equal(t, PresetLtssmStates, values)

	empty, err := HexList("addresses", "  \n ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = HexList("addresses", "0xF721200C, nothex")
	assert.ErrorIs(t, err, &faults.ValidationError{})
	_, err = HexList("addresses", "0x")
	assert.Error(t, err)
}

func TestAddressesExpandsPresets(t *testing.T) {
	values, err := Addresses("PHY-READY")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0xFCA50E90}, values)

	values, err = Addresses("gt-reset-fsm")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0xF72121D8, 0xF72125D8, 0xF72129D8, 0xF7212DD8}, values)

	_, err = Addresses("")
	assert.EqualError(t, err, "addresses: No register addresses entered!")
}

func TestWriteValuesRequiresAtLeastOne(t *testing.T) {
	_, err := WriteValues(" ")
	assert.EqualError(t, err, "values: No values entered for writing!")

	values, err := WriteValues("1,2")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, values)
}

func TestProbeCondition(t *testing.T) {
	for _, operator := range ProbeOperators {
		assert.NoError(t, ProbeCondition(operator, "1"))
	}
	assert.NoError(t, ProbeCondition("==", "10XR"))
	assert.Error(t, ProbeCondition("=>", "1"))
	assert.Error(t, ProbeCondition("==", "2"))
	assert.Error(t, ProbeCondition("==", ""))
}

func TestIlaSettings(t *testing.T) {
	settings, err := IlaSettings("2", "1024", "512")
	require.NoError(t, err)
	assert.Equal(t, sdk.TriggerSettings{Position: 512, WindowCount: 2, WindowSize: 1024}, settings)

	_, err = IlaSettings("", "1024", "0")
	assert.EqualError(t, err, "window_count: Missing information on Window Count [Settings]")

	_, err = IlaSettings("1", "many", "0")
	assert.ErrorIs(t, err, &faults.ValidationError{})

	_, err = IlaSettings("1", "64", "64")
	assert.Error(t, err)
}

func TestCSVPath(t *testing.T) {
	assert.Equal(t, "", CSVPath(" "))
	assert.Equal(t, "capture.csv", CSVPath("capture.csv"))
	assert.Equal(t, "capture.csv", CSVPath("capture.txt"))
	assert.Equal(t, "runs/capture.csv", CSVPath("runs/capture"))
}

func TestSizeAndTarget(t *testing.T) {
	size, err := Size("h")
	require.NoError(t, err)
	assert.Equal(t, sdk.SizeHalf, size)
	_, err = Size("x")
	assert.ErrorIs(t, err, &faults.ValidationError{})

	assert.NoError(t, MemoryTarget("DPC", []string{"DPC", "APU"}))
	assert.Error(t, MemoryTarget("RPU", []string{"DPC", "APU"}))
}

func TestProgrammingFiles(t *testing.T) {
	dir := t.TempDir()
	pdi := filepath.Join(dir, "design.pdi")
	ltx := filepath.Join(dir, "design.ltx")
	require.NoError(t, os.WriteFile(pdi, []byte("pdi"), 0o600))
	require.NoError(t, os.WriteFile(ltx, []byte("ltx"), 0o600))

	assert.NoError(t, ProgrammingFiles(pdi, ""))
	assert.NoError(t, ProgrammingFiles(pdi, ltx))
	assert.Error(t, ProgrammingFiles("", ""))
	assert.Error(t, ProgrammingFiles(ltx, ""))
	assert.Error(t, ProgrammingFiles(pdi, filepath.Join(dir, "missing.ltx")))
}
