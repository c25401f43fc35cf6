package player

import (
	"github.com/fluxradio/fluxd/internal/bitrate"
	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// PrecacheState tracks the lifecycle of a precache slot.
type PrecacheState int

const (
	PrecacheIdle PrecacheState = iota
	PrecacheRunning
	PrecacheReady
)

// PrecacheSlot holds a decoder instance pre-decoded a little way into the
// next playlist item, ready to be handed to the live player without an
// audible gap.
type PrecacheSlot struct {
	State       PrecacheState
	File        string
	Instance    decoder.Instance
	Scratch     []byte
	Params      soundfmt.Params
	Bitrates    *bitrate.Timeline
	DecodedTime float64
}

// startPrecache opens file with backend and decodes up to one PCM buffer's
// worth of audio in the background, so that when playback reaches file it
// can reuse the already-opened decoder and already-decoded bytes instead of
// starting cold.
func (p *Player) startPrecache(file string, backend decoder.Backend) {
	p.precMu.Lock()
	p.precache = PrecacheSlot{State: PrecacheRunning, File: file}
	p.precMu.Unlock()

	go func() {
		slot := PrecacheSlot{File: file, Bitrates: bitrate.New()}

		inst, err := backend.Open(file)
		if err != nil {
			p.failPrecache()
			return
		}

		scratch := make([]byte, 0, 2*pcmBufSize)
		for len(scratch) < pcmBufSize {
			chunk, decErr := inst.Decode()
			if decErr != nil {
				// EOF, or a genuine error: either way there isn't enough
				// audio here to make precaching worthwhile.
				inst.Close()
				p.failPrecache()
				return
			}

			if slot.Params.Channels == 0 {
				slot.Params = chunk.Params
			} else if !slot.Params.Eq(chunk.Params) {
				// A precached file that changes format mid-stream can't be
				// handed off with a single Params value; give up and let
				// play_file open it fresh.
				inst.Close()
				p.failPrecache()
				return
			}

			slot.Bitrates.Add(int(slot.DecodedTime), inst.Bitrate())
			slot.DecodedTime += float64(len(chunk.PCM)) / float64(chunk.Params.BytesPerSecond())
			scratch = append(scratch, chunk.PCM...)
		}

		slot.Instance = inst
		slot.Scratch = scratch
		slot.State = PrecacheReady

		p.precMu.Lock()
		if p.precache.File == file && p.precache.State == PrecacheRunning {
			p.precache = slot
		} else {
			// Cancelled or superseded while we were decoding.
			p.precMu.Unlock()
			inst.Close()
			return
		}
		p.precMu.Unlock()
	}()
}

func (p *Player) failPrecache() {
	p.precMu.Lock()
	if p.precache.State == PrecacheRunning {
		p.precache = PrecacheSlot{}
	}
	p.precMu.Unlock()
}
