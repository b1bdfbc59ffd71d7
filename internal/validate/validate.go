// Package validate turns operator input into typed values. Every rejection is a
// faults.ValidationError raised before any task starts.
package validate

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/versal-debug/vdbg/internal/faults"
	"github.com/versal-debug/vdbg/internal/sdk"
)

// Register presets offered next to the address input.
var (
	PresetPhyReady    = []uint64{0xFCA50E90}
	PresetGTResetFSM  = []uint64{0xF72121D8, 0xF72125D8, 0xF72129D8, 0xF7212DD8}
	PresetLtssmStates = []uint64{0xF721200C, 0xF721240C, 0xF721280C, 0xF7212C0C}
)

// Presets maps preset names to their register addresses.
var Presets = map[string][]uint64{
	"phy-ready":    PresetPhyReady,
	"gt-reset-fsm": PresetGTResetFSM,
	"ltssm":        PresetLtssmStates,
}

// ProbeOperators are the comparison operators an ILA probe trigger accepts.
var ProbeOperators = []string{"==", "!=", "<", "<=", ">", ">=", "||"}

// ProbeValues are the per-bit trigger values an ILA probe trigger accepts.
var ProbeValues = []string{"X", "0", "1", "F", "R", "L", "S", "B", "N"}

var hexSeparators = regexp.MustCompile(`,\s*|\s+`)

// HexList parses hexadecimal numbers separated by commas or whitespace. A "0x" prefix
// is optional. Blank input yields an empty list.
func HexList(field, input string) ([]uint64, error) {
	var values []uint64
	for _, token := range hexSeparators.Split(strings.TrimSpace(input), -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		digits := strings.TrimPrefix(strings.TrimPrefix(token, "0x"), "0X")
		value, err := strconv.ParseUint(digits, 16, 64)
		if err != nil || digits == "" {
			return nil, faults.Invalid(field, "%q is not a hexadecimal value", token)
		}
		values = append(values, value)
	}
	return values, nil
}

// Addresses parses a register address list, expanding preset names.
func Addresses(input string) ([]uint64, error) {
	if preset, ok := Presets[strings.ToLower(strings.TrimSpace(input))]; ok {
		return append([]uint64(nil), preset...), nil
	}
	addresses, err := HexList("addresses", input)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, &faults.ValidationError{Field: "addresses", Message: "No register addresses entered!"}
	}
	return addresses, nil
}

// WriteValues parses the values to write.
func WriteValues(input string) ([]uint64, error) {
	values, err := HexList("values", input)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, &faults.ValidationError{Field: "values", Message: "No values entered for writing!"}
	}
	return values, nil
}

// Size parses a memory access width.
func Size(input string) (sdk.Size, error) {
	size, err := sdk.ParseSize(input)
	if err != nil {
		return "", faults.Invalid("size", "%v", err)
	}
	return size, nil
}

// MemoryTarget checks target against the device's list.
func MemoryTarget(target string, known []string) error {
	for _, candidate := range known {
		if candidate == target {
			return nil
		}
	}
	return faults.Invalid("target", "unknown memory target %q (have %s)", target, strings.Join(known, ", "))
}

// ProbeCondition checks an ILA trigger operator and value.
func ProbeCondition(operator, value string) error {
	if !oneOf(operator, ProbeOperators) {
		return faults.Invalid("operator", "%q is not one of %s", operator, strings.Join(ProbeOperators, " "))
	}
	if value == "" {
		return faults.Invalid("value", "trigger value is required")
	}
	for _, symbol := range value {
		if !oneOf(strings.ToUpper(string(symbol)), ProbeValues) {
			return faults.Invalid("value", "%q is not one of %s", string(symbol), strings.Join(ProbeValues, " "))
		}
	}
	return nil
}

// IlaSettings parses the required capture settings.
func IlaSettings(windowCount, dataDepth, triggerPosition string) (sdk.TriggerSettings, error) {
	count, err := requiredInt("window_count", "Window Count", windowCount, 1)
	if err != nil {
		return sdk.TriggerSettings{}, err
	}
	depth, err := requiredInt("data_depth", "Window Data Depth", dataDepth, 1)
	if err != nil {
		return sdk.TriggerSettings{}, err
	}
	position, err := requiredInt("trigger_position", "Trigger Position", triggerPosition, 0)
	if err != nil {
		return sdk.TriggerSettings{}, err
	}
	if position >= depth {
		return sdk.TriggerSettings{}, faults.Invalid("trigger_position", "must be below the window data depth %d", depth)
	}
	return sdk.TriggerSettings{Position: position, WindowCount: count, WindowSize: depth}, nil
}

// CSVPath forces a .csv extension. Blank input means "no CSV".
func CSVPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasSuffix(path, ".csv") {
		return path
	}
	if ext := filepath.Ext(path); ext != "" {
		path = strings.TrimSuffix(path, ext)
	}
	return path + ".csv"
}

// ProgrammingFiles checks that the PDI exists and, when given, the LTX too.
func ProgrammingFiles(pdi, ltx string) error {
	pdi = strings.TrimSpace(pdi)
	if pdi == "" {
		return &faults.ValidationError{Field: "pdi", Message: "No PDI file selected!"}
	}
	if !strings.EqualFold(filepath.Ext(pdi), ".pdi") {
		return faults.Invalid("pdi", "%q is not a .pdi file", pdi)
	}
	if err := fileExists("pdi", pdi); err != nil {
		return err
	}
	ltx = strings.TrimSpace(ltx)
	if ltx == "" {
		return nil
	}
	if !strings.EqualFold(filepath.Ext(ltx), ".ltx") {
		return faults.Invalid("ltx", "%q is not a .ltx file", ltx)
	}
	return fileExists("ltx", ltx)
}

func requiredInt(field, label, input string, minimum int) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, &faults.ValidationError{Field: field, Message: "Missing information on " + label + " [Settings]"}
	}
	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, faults.Invalid(field, "%q is not an integer", input)
	}
	if value < minimum {
		return 0, faults.Invalid(field, "must be at least %d", minimum)
	}
	return value, nil
}

func fileExists(field, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return faults.Invalid(field, "cannot read %q: %v", path, err)
	}
	if info.IsDir() {
		return faults.Invalid(field, "%q is a directory", path)
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
