// Package player implements the decode loop: pulling frames from a
// decoder.Instance, running them through conversion/equalizer/soft mixer,
// and pushing the result into an outbuf.Buffer, with precache handoff and
// a debug MD5 digest.
package player

import (
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/fluxradio/fluxd/internal/bitrate"
	"github.com/fluxradio/fluxd/internal/convert"
	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/equalizer"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/outbuf"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// pcmBufSize is the per-iteration decode buffer size.
const pcmBufSize = 36 * 1024

// requestKind is an in-flight request directed at the decode loop from
// outside. Pause and unpause are handled one layer up, by the audio
// controller, not here.
type requestKind int

const (
	reqNothing requestKind = iota
	reqSeek
	reqStop
)

// tagsSource distinguishes tags supplied by the decoder itself from tags
// read out of a mid-stream ICY metadata block: once decoder tags are
// seen, ICY metadata no longer overrides the title.
type tagsSource int

const (
	tagsSourceNone tagsSource = iota
	tagsSourceDecoder
	tagsSourceMetadata
)

// OpenDeviceFunc opens (or reopens) the output device for req, returning
// the parameters the device actually settled on — which may differ from
// req and must be used for any conversion pipeline.
type OpenDeviceFunc func(req soundfmt.Params) (soundfmt.Params, error)

// md5Digest is an optional debug digest computed over bytes delivered to
// the output buffer, invalidated (Okay=false) on seek/stop/error/format
// change. It exists purely for diagnostics.
type md5Digest struct {
	okay bool
	len  int64
	h    hash.Hash
}

func newMD5Digest() *md5Digest {
	return &md5Digest{okay: true, h: md5.New()}
}

func (m *md5Digest) invalidate() { m.okay = false }

func (m *md5Digest) process(buf []byte) {
	if !m.okay {
		return
	}
	m.len += int64(len(buf))
	m.h.Write(buf)
}

func (m *md5Digest) sum() (string, int64, bool) {
	if !m.okay {
		return "", 0, false
	}
	return fmt.Sprintf("%x", m.h.Sum(nil)), m.len, true
}

// Player runs one decode loop at a time. Its zero value is not
// usable; construct with New.
type Player struct {
	outBuf     *outbuf.Buffer
	openDevice OpenDeviceFunc

	ShowStreamErrors bool
	PrebufferKB      int
	PrecacheEnabled  bool
	AutoNext         bool

	// pipelineMu guards equalizer/softMixer/makeMono below: the decode
	// loop reads them once per chunk via pipelineSnapshot, while the
	// control socket's toggle/set commands write them from a different
	// goroutine.
	pipelineMu sync.Mutex
	equalizer  *equalizer.Equalizer // nil = bypass
	softMixer  *equalizer.SoftMixer // nil = bypass
	makeMono   bool

	OnTagsChanged func(*playlist.Tags)
	OnError       func(*decoder.Error)
	OnPrebuffer   func(active bool)

	reqMu   sync.Mutex
	reqCond *sync.Cond
	request requestKind
	reqSeek float64

	tagsMu     sync.Mutex
	currTags   *playlist.Tags
	tagsSource tagsSource

	streamMu sync.Mutex
	stream   iostream.Stream // weak back-reference for external Abort()

	precMu   sync.Mutex
	precache PrecacheSlot

	paramsMu   sync.Mutex
	currParams soundfmt.Params

	bitrates *bitrate.Timeline
	md5      *md5Digest
}

// New builds a Player bound to outBuf and a device-open callback used
// whenever the playing format changes (including the first open).
func New(outBuf *outbuf.Buffer, openDevice OpenDeviceFunc) *Player {
	p := &Player{
		outBuf:      outBuf,
		openDevice:  openDevice,
		PrebufferKB: 64,
		bitrates:    bitrate.New(),
	}
	p.reqCond = sync.NewCond(&p.reqMu)
	return p
}

// RequestStop asks the running decode loop to stop and return.
func (p *Player) RequestStop() {
	p.reqMu.Lock()
	p.request = reqStop
	p.reqCond.Broadcast()
	p.reqMu.Unlock()
}

// RequestSeek asks the running decode loop to seek to sec seconds
// (clamped to zero if negative, step 5).
func (p *Player) RequestSeek(sec float64) {
	if sec < 0 {
		sec = 0
	}
	p.reqMu.Lock()
	p.request = reqSeek
	p.reqSeek = sec
	p.reqCond.Broadcast()
	p.reqMu.Unlock()
}

// CurrentTags returns the tags of the currently playing item, or nil if
// none have been read yet.
func (p *Player) CurrentTags() *playlist.Tags {
	p.tagsMu.Lock()
	defer p.tagsMu.Unlock()
	return p.currTags.Clone()
}

// Stream returns the decoder's underlying I/O stream, if any, so the
// server can call Abort() on it from outside the decode loop.
func (p *Player) Stream() iostream.Stream {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	return p.stream
}

// SetEqualizer installs eq for the decode loop to pick up on its next
// chunk (nil bypasses the equalizer entirely).
func (p *Player) SetEqualizer(eq *equalizer.Equalizer) {
	p.pipelineMu.Lock()
	p.equalizer = eq
	p.pipelineMu.Unlock()
}

// Equalizer returns the currently installed equalizer, or nil if bypassed.
func (p *Player) Equalizer() *equalizer.Equalizer {
	p.pipelineMu.Lock()
	defer p.pipelineMu.Unlock()
	return p.equalizer
}

// SetSoftMixer installs mixer for the decode loop to pick up on its next
// chunk (nil bypasses the soft mixer entirely).
func (p *Player) SetSoftMixer(mixer *equalizer.SoftMixer) {
	p.pipelineMu.Lock()
	p.softMixer = mixer
	p.pipelineMu.Unlock()
}

// SoftMixer returns the currently installed soft mixer, or nil if bypassed.
func (p *Player) SoftMixer() *equalizer.SoftMixer {
	p.pipelineMu.Lock()
	defer p.pipelineMu.Unlock()
	return p.softMixer
}

// SetMakeMono sets whether the decode loop mixes every channel down to
// mono.
func (p *Player) SetMakeMono(mono bool) {
	p.pipelineMu.Lock()
	p.makeMono = mono
	p.pipelineMu.Unlock()
}

// ToggleMakeMono flips mono mixdown and returns the new value.
func (p *Player) ToggleMakeMono() bool {
	p.pipelineMu.Lock()
	defer p.pipelineMu.Unlock()
	p.makeMono = !p.makeMono
	return p.makeMono
}

// MakeMono reports whether the decode loop currently mixes down to mono.
func (p *Player) MakeMono() bool {
	p.pipelineMu.Lock()
	defer p.pipelineMu.Unlock()
	return p.makeMono
}

// pipelineSnapshot returns the live equalizer/soft-mixer/mono settings for
// one decode-loop pass, taken under a single lock so the three stay
// consistent with each other for that pass.
func (p *Player) pipelineSnapshot() (*equalizer.Equalizer, *equalizer.SoftMixer, bool) {
	p.pipelineMu.Lock()
	defer p.pipelineMu.Unlock()
	return p.equalizer, p.softMixer, p.makeMono
}

// OutBuf returns the output buffer backing this player, so a caller one
// layer up (the audio controller) can pause/unpause/query position without
// duplicating that state here.
func (p *Player) OutBuf() *outbuf.Buffer {
	return p.outBuf
}

// CurrentParams returns the sound parameters the output device was last
// opened with (rate, channels, format), or the zero value before any
// track has played.
func (p *Player) CurrentParams() soundfmt.Params {
	p.paramsMu.Lock()
	defer p.paramsMu.Unlock()
	return p.currParams
}

func (p *Player) setCurrentParams(sp soundfmt.Params) {
	p.paramsMu.Lock()
	p.currParams = sp
	p.paramsMu.Unlock()
}

func (p *Player) setStream(s iostream.Stream) {
	p.streamMu.Lock()
	p.stream = s
	p.streamMu.Unlock()
}

// MD5 returns the debug digest of PCM delivered to the output buffer
// during the most recent Play call, and whether it is still valid (false
// once a seek, stop, error or format change occurred).
func (p *Player) MD5() (sum string, length int64, okay bool) {
	if p.md5 == nil {
		return "", 0, false
	}
	return p.md5.sum()
}

// BitrateAt returns the bitrate (kbps) in effect at timeSec, or -1 if
// unknown.
func (p *Player) BitrateAt(timeSec int) int {
	return p.bitrates.Get(timeSec)
}

// Precache returns a snapshot of the precache slot's current state.
func (p *Player) Precache() PrecacheSlot {
	p.precMu.Lock()
	defer p.precMu.Unlock()
	return p.precache
}

// CancelPrecache discards any running or ready precache slot not matching
// keepFile (pass "" to discard unconditionally).
func (p *Player) CancelPrecache(keepFile string) {
	p.precMu.Lock()
	slot := p.precache
	p.precMu.Unlock()

	if slot.State == PrecacheIdle || slot.File == keepFile {
		return
	}
	p.discardPrecache()
}

func (p *Player) discardPrecache() {
	p.precMu.Lock()
	slot := p.precache
	p.precache = PrecacheSlot{}
	p.precMu.Unlock()

	if slot.Instance != nil {
		slot.Instance.Close()
	}
}

// Play runs the decode loop to completion. It blocks; callers
// run it in its own goroutine and use RequestStop/RequestSeek to control
// it from outside. nextFile, when non-empty and a local file, is
// precached automatically once EOF approaches, provided PrecacheEnabled
// and AutoNext are both set.
func (p *Player) Play(file string, backend decoder.Backend, isLocalFile bool, nextFile string, nextIsLocalFile bool) error {
	p.outBuf.Reset()
	p.md5 = newMD5Digest()

	inst, sp, alreadyDecoded, err := p.acquireInstance(file, backend)
	if err != nil {
		return err
	}
	defer func() {
		p.setStream(nil)
		inst.Close()
	}()

	p.setStream(inst.Stream())

	p.tagsMu.Lock()
	p.currTags = playlist.NewTags()
	p.tagsSource = tagsSourceNone
	p.tagsMu.Unlock()

	p.outBuf.SetFreeCallback(func(int) {
		p.reqMu.Lock()
		p.reqCond.Broadcast()
		p.reqMu.Unlock()
	})

	drvParams, err := p.openDevice(sp)
	if err != nil {
		p.md5.invalidate()
		return err
	}
	p.setCurrentParams(drvParams)
	p.outBuf.SetParams(outbuf.Params{BytesPerSecond: drvParams.BytesPerSecond()})

	pipeline := convert.NewPipeline(sp, drvParams)

	return p.decodeLoop(inst, backend, sp, drvParams, pipeline, nextFile, nextIsLocalFile, alreadyDecoded)
}

// acquireInstance opens file fresh, or inherits a matching Ready precache
// slot.
func (p *Player) acquireInstance(file string, backend decoder.Backend) (decoder.Instance, soundfmt.Params, float64, error) {
	p.precMu.Lock()
	slot := p.precache
	p.precMu.Unlock()

	if slot.State == PrecacheReady && slot.File == file {
		p.precMu.Lock()
		p.precache = PrecacheSlot{}
		p.precMu.Unlock()

		if len(slot.Scratch) > 0 {
			p.md5.process(slot.Scratch)
			if _, ok := p.outBuf.Put(slot.Scratch); !ok {
				return nil, soundfmt.Params{}, 0, errors.New("player: output buffer stopped during precache handoff")
			}
		}
		p.bitrates.Adopt(slot.Bitrates)
		return slot.Instance, slot.Params, slot.DecodedTime, nil
	}

	if slot.State != PrecacheIdle {
		p.discardPrecache()
	}

	inst, err := backend.Open(file)
	if err != nil {
		return nil, soundfmt.Params{}, 0, fmt.Errorf("player: open %s: %w", file, err)
	}
	return inst, soundfmt.Params{}, 0, nil
}

func (p *Player) decodeLoop(
	inst decoder.Instance,
	backend decoder.Backend,
	sp soundfmt.Params,
	drvParams soundfmt.Params,
	pipeline *convert.Pipeline,
	nextFile string,
	nextIsLocalFile bool,
	decodeTime float64,
) error {
	eof := false
	var pending []byte
	precacheStarted := false

	// Set when a decoded chunk arrives in a different sound format than
	// the device is currently open with. The raw bytes wait in rawPending
	// until the output buffer fully drains, at which point the device is
	// reopened and a fresh pipeline built before conversion resumes.
	formatChangePending := false
	var newParams soundfmt.Params
	var rawPending []byte

	for {
		p.reqMu.Lock()
		switch {
		case !eof && !formatChangePending && len(pending) == 0:
			p.reqMu.Unlock()

			if s := inst.Stream(); s != nil {
				if fill := p.outBuf.GetFill(); fill < p.PrebufferKB*1024 {
					p.setPrebuffering(true)
					_ = s.Prebuffer(p.PrebufferKB * 1024)
					p.setPrebuffering(false)
				}
			}

			chunk, decErr := inst.Decode()
			if decErr == io.EOF {
				eof = true
			} else if decErr != nil {
				p.md5.invalidate()
				if e := inst.GetError(); e != nil {
					p.reportError(e)
				}
				eof = true
			} else {
				decodeTime += float64(len(chunk.PCM)) / float64(chunk.Params.BytesPerSecond())
				p.bitrates.Add(int(decodeTime), inst.Bitrate())
				p.pollTags(inst)

				if e := inst.GetError(); e != nil {
					p.md5.invalidate()
					if e.Kind != decoder.ErrStream || p.ShowStreamErrors {
						p.reportError(e)
					}
					if e.Fatal() {
						eof = true
					}
				}

				if !chunk.Params.Eq(sp) {
					if sp.Channels != 0 {
						p.md5.invalidate()
					}
					formatChangePending = true
					newParams = chunk.Params
					rawPending = chunk.PCM
				} else {
					eq, mixer, mono := p.pipelineSnapshot()
					pending = applyPipeline(pipeline, eq, mixer, mono, chunk.PCM, drvParams)
				}
			}
			p.reqMu.Lock()

		case formatChangePending && p.outBuf.GetFill() == 0:
			p.reqMu.Unlock()

			drv, err := p.openDevice(newParams)
			if err != nil {
				p.md5.invalidate()
				return err
			}
			drvParams = drv
			sp = newParams
			p.setCurrentParams(drvParams)
			pipeline = convert.NewPipeline(sp, drvParams)
			p.outBuf.SetParams(outbuf.Params{BytesPerSecond: drvParams.BytesPerSecond()})
			eq, mixer, mono := p.pipelineSnapshot()
			pending = applyPipeline(pipeline, eq, mixer, mono, rawPending, drvParams)
			rawPending = nil
			formatChangePending = false

			p.reqMu.Lock()

		case len(pending) > p.outBuf.GetFree() || (eof && p.outBuf.GetFill() > 0) || (formatChangePending && p.outBuf.GetFill() > 0):
			if eof && !precacheStarted && nextFile != "" && nextIsLocalFile &&
				p.PrecacheEnabled && p.AutoNext {
				precacheStarted = true
				p.startPrecache(nextFile, backend)
			}
			p.reqCond.Wait()
		}
		p.reqMu.Unlock()

		req, reqSeek := p.takeRequest()

		switch req {
		case reqStop:
			p.md5.invalidate()
			p.outBuf.Stop()
			return nil

		case reqSeek:
			p.md5.invalidate()
			actual, err := inst.Seek(reqSeek)
			if err != nil || actual < 0 {
				continue
			}
			p.outBuf.Stop()
			p.outBuf.Reset()
			p.outBuf.TimeSet(actual)
			p.bitrates.Clear()
			decodeTime = actual
			eof = false
			pending = nil
			formatChangePending = false
			rawPending = nil

		default:
			switch {
			case !eof && len(pending) <= p.outBuf.GetFree():
				p.md5.process(pending)
				p.outBuf.Put(pending)
				pending = nil

			case eof && p.outBuf.GetFill() == 0:
				return nil
			}
		}
	}
}

func (p *Player) takeRequest() (requestKind, float64) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	r, s := p.request, p.reqSeek
	p.request = reqNothing
	return r, s
}

func (p *Player) setPrebuffering(active bool) {
	if p.OnPrebuffer != nil {
		p.OnPrebuffer(active)
	}
}

func (p *Player) reportError(e *decoder.Error) {
	if p.OnError != nil {
		p.OnError(e)
	}
}

// pollTags refreshes mid-stream tags: decoder-supplied tags dominate ICY
// stream tags once seen.
func (p *Player) pollTags(inst decoder.Instance) {
	p.tagsMu.Lock()
	defer p.tagsMu.Unlock()

	if tags, changed := inst.CurrentTags(); changed && tags != nil {
		p.currTags = tags
		p.tagsSource = tagsSourceDecoder
		p.notifyTags()
		return
	}

	if p.tagsSource == tagsSourceDecoder {
		return
	}

	s := inst.Stream()
	if s == nil {
		return
	}
	title := s.MetadataTitle()
	if title == "" || (p.currTags != nil && p.currTags.Title == title) {
		return
	}
	t := playlist.NewTags()
	t.Title = title
	t.Filled |= playlist.FilledComments
	p.currTags = t
	p.tagsSource = tagsSourceMetadata
	p.notifyTags()
}

func (p *Player) notifyTags() {
	if p.OnTagsChanged != nil {
		p.OnTagsChanged(p.currTags.Clone())
	}
}

// applyPipeline runs conversion, equalizer, soft mixer and mono mixdown
// over pcm exactly when each stage is active, canonicalizing to float64
// only when at least one of them needs it.
func applyPipeline(pipeline *convert.Pipeline, eq *equalizer.Equalizer, mixer *equalizer.SoftMixer, makeMono bool, pcm []byte, drv soundfmt.Params) []byte {
	if eq == nil && mixer == nil && !makeMono {
		if pipeline == nil {
			return pcm
		}
		return pipeline.Convert(pcm)
	}

	if pipeline != nil {
		pcm = pipeline.Convert(pcm)
	}
	fmtForRoundTrip := drv.Fmt
	samples := convert.ToFloat64(pcm, fmtForRoundTrip)

	if eq != nil {
		eq.ProcessInPlace(samples)
	}
	if mixer != nil {
		mixer.ProcessInPlace(samples, drv.Channels)
	}
	if makeMono {
		mixdownMono(samples, drv.Channels)
	}

	return convert.FromFloat64(samples, fmtForRoundTrip)
}

// mixdownMono averages every channel in each frame and writes the average
// back to all channels, the same per-frame averaging SoftMixer uses for
// its own mono mode.
func mixdownMono(samples []float64, channels int) {
	if channels < 2 {
		return
	}
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i+c]
		}
		avg := sum / float64(channels)
		for c := 0; c < channels; c++ {
			samples[i+c] = avg
		}
	}
}
