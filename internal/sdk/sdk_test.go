package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]Size{
		"b":        SizeByte,
		"Byte":     SizeByte,
		" h ":      SizeHalf,
		"halfword": SizeHalf,
		"w (Word)": SizeWord,
	}
	for input, want := range cases {
		got, err := ParseSize(input)
		require.NoErrorf(t, err, "input %q", input)
		assert.Equalf(t, want, got, "input %q", input)
	}

	_, err := ParseSize("quad")
	assert.Error(t, err)
	_, err = ParseSize("")
	assert.Error(t, err)
}

func TestSizeBits(t *testing.T) {
	assert.Equal(t, 8, SizeByte.Bits())
	assert.Equal(t, 16, SizeHalf.Bits())
	assert.Equal(t, 32, SizeWord.Bits())
}

func TestWaveformRows(t *testing.T) {
	wf := Waveform{
		Probes:  []string{"axi_valid", "axi_data"},
		Samples: map[string][]uint64{"axi_valid": {1, 0, 1}, "axi_data": {7, 8}},
	}
	assert.Equal(t, 3, wf.Rows())
	assert.Zero(t, Waveform{}.Rows())
}
