package eqpreset

import (
	"strings"
	"testing"

	"github.com/fluxradio/fluxd/internal/equalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `EQSET
# comment line, ignored
0 3.0
100 1.0 -6.5
1000 0.8 4.25
10000 1.2 -2.0
`

func TestParseBasicPreset(t *testing.T) {
	p, err := Parse(strings.NewReader(sample), "rock")
	require.NoError(t, err)

	assert.Equal(t, "rock", p.Name)
	assert.InDelta(t, 3.0, p.Preamp, 1e-9)
	require.Len(t, p.Bands, 3)
	assert.Equal(t, equalizer.Band{CenterFreq: 100, Bandwidth: 1.0, GainDB: -6.5}, p.Bands[0])
	assert.Equal(t, equalizer.Band{CenterFreq: 1000, Bandwidth: 0.8, GainDB: 4.25}, p.Bands[1])
	assert.Equal(t, equalizer.Band{CenterFreq: 10000, Bandwidth: 1.2, GainDB: -2.0}, p.Bands[2])
}

func TestParseRejectsMissingHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("100 1.0 -6.5\n"), "bad")
	assert.Error(t, err)
}

func TestParseRejectsEmptyFile(t *testing.T) {
	_, err := Parse(strings.NewReader(""), "empty")
	assert.Error(t, err)
}

func TestWriteThenParseRoundTrip(t *testing.T) {
	p := &Preset{
		Name:   "flat",
		Preamp: -1.5,
		Bands: []equalizer.Band{
			{CenterFreq: 60, Bandwidth: 1.0, GainDB: 0},
			{CenterFreq: 8000, Bandwidth: 2.0, GainDB: 3.333},
		},
	}

	var buf strings.Builder
	require.NoError(t, Write(&buf, p))

	got, err := Parse(strings.NewReader(buf.String()), "flat")
	require.NoError(t, err)

	assert.InDelta(t, p.Preamp, got.Preamp, 1e-9)
	require.Len(t, got.Bands, len(p.Bands))
	for i := range p.Bands {
		assert.InDelta(t, p.Bands[i].CenterFreq, got.Bands[i].CenterFreq, 1e-9)
		assert.InDelta(t, p.Bands[i].Bandwidth, got.Bands[i].Bandwidth, 1e-9)
		assert.InDelta(t, p.Bands[i].GainDB, got.Bands[i].GainDB, 1e-9)
	}
}

func TestWriteOmitsZeroPreampLine(t *testing.T) {
	p := &Preset{Name: "noop", Bands: []equalizer.Band{{CenterFreq: 1000, Bandwidth: 1.0, GainDB: 1.0}}}

	var buf strings.Builder
	require.NoError(t, Write(&buf, p))

	assert.False(t, strings.Contains(buf.String(), "\n0 "))
}
