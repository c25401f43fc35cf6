// Package eqpreset reads and writes EQSET equalizer preset files: a header
// line starting with "EQSET", then whitespace-separated "center_freq
// bandwidth dB_gain" triples, one per band, where a center_freq of 0
// means the line instead carries the preamp in its second field. Numbers
// always use a POSIX decimal point regardless of locale.
package eqpreset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fluxradio/fluxd/internal/equalizer"
)

const header = "EQSET"

// Preset is a named equalizer configuration: a preamp and an ordered list
// of peaking bands.
type Preset struct {
	Name   string
	Preamp float64
	Bands  []equalizer.Band
}

// Parse reads an EQSET preset from r. name is used only to populate the
// returned Preset's Name field (the format itself carries no name).
func Parse(r io.Reader, name string) (*Preset, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return nil, fmt.Errorf("eqpreset: empty file")
	}
	first := strings.TrimSpace(scanner.Text())
	if len(first) < len(header) || !strings.EqualFold(first[:len(header)], header) {
		return nil, fmt.Errorf("eqpreset: missing %q header", header)
	}

	p := &Preset{Name: name}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("eqpreset: malformed line %q", line)
		}

		cf, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("eqpreset: bad center_freq in %q: %w", line, err)
		}
		bw, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("eqpreset: bad bandwidth in %q: %w", line, err)
		}

		if cf == 0 {
			p.Preamp = bw
			continue
		}

		if len(fields) < 3 {
			return nil, fmt.Errorf("eqpreset: band line missing gain: %q", line)
		}
		dg, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("eqpreset: bad gain in %q: %w", line, err)
		}

		p.Bands = append(p.Bands, equalizer.Band{CenterFreq: cf, Bandwidth: bw, GainDB: dg})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return p, nil
}

// Write serializes p back into EQSET format. The preamp, when non-zero or
// when there are no bands to anchor the file's meaning, is written as a
// "0 preamp" line preceding the bands.
func Write(w io.Writer, p *Preset) error {
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if p.Preamp != 0 || len(p.Bands) == 0 {
		if _, err := fmt.Fprintf(w, "0 %s\n", formatFloat(p.Preamp)); err != nil {
			return err
		}
	}
	for _, b := range p.Bands {
		if _, err := fmt.Fprintf(w, "%s %s %s\n",
			formatFloat(b.CenterFreq), formatFloat(b.Bandwidth), formatFloat(b.GainDB)); err != nil {
			return err
		}
	}
	return nil
}

// formatFloat renders a float with a POSIX decimal point, trimming
// insignificant trailing zeros while keeping full precision round-trips.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
