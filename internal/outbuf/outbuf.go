// Package outbuf implements the output buffer: a bounded byte ring between
// the decode thread (producer) and the output-driver consumer thread,
// with wall-clock playback position tracking that compensates for
// hardware latency.
package outbuf

import (
	"sync"
	"time"
)

// FreeCallback is invoked by the consumer goroutine after every drain, with
// the number of bytes just freed.
type FreeCallback func(n int)

// BuffFillGetter reports how many bytes the output driver itself is still
// holding (hardware/OS buffering beyond outbuf's own ring), so TimeGet can
// subtract it from the wall-clock estimate.
type BuffFillGetter func() int

// Buffer is a bounded byte ring guarded by a mutex with two condition
// variables: freeCond wakes a blocked Put when space opens up, fillCond
// wakes a blocked Wait/consumer when data arrives.
type Buffer struct {
	mu        sync.Mutex
	freeCond  *sync.Cond
	fillCond  *sync.Cond

	data       []byte
	readPos    int
	writePos   int
	fill       int // bytes currently queued
	cap        int

	stopped bool
	paused  bool

	bytesSinceOrigin int64
	timeOrigin       time.Time
	params           Params

	freeCB      FreeCallback
	buffFillGet BuffFillGetter
}

// Params describes the sample format needed to convert a byte count into a
// duration for TimeGet.
type Params struct {
	BytesPerSecond int
}

// New creates a Buffer with the given capacity in bytes.
func New(capacityBytes int) *Buffer {
	b := &Buffer{
		data:       make([]byte, capacityBytes),
		cap:        capacityBytes,
		timeOrigin: time.Unix(0, 0),
	}
	b.freeCond = sync.NewCond(&b.mu)
	b.fillCond = sync.NewCond(&b.mu)
	return b
}

// SetParams configures the sample rate/format used for TimeGet conversions.
// Called whenever the player (re)opens the device with new parameters.
func (b *Buffer) SetParams(p Params) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.params = p
}

// SetFreeCallback registers fn to be invoked after every drain with the
// number of bytes freed.
func (b *Buffer) SetFreeCallback(fn FreeCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeCB = fn
}

// SetBuffFillGetter registers the function TimeGet uses to learn how many
// bytes the output driver itself still holds.
func (b *Buffer) SetBuffFillGetter(fn BuffFillGetter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffFillGet = fn
}

// Put appends bytes to the ring, blocking while full. It wakes when space
// frees up or when Stop is called, in which case it returns the number of
// bytes actually written (possibly fewer than len(p), possibly zero) and
// false for ok.
func (b *Buffer) Put(p []byte) (n int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(p) > 0 {
		if b.stopped {
			return n, false
		}
		free := b.cap - b.fill
		if free == 0 {
			b.freeCond.Wait()
			continue
		}
		chunk := len(p)
		if chunk > free {
			chunk = free
		}
		b.writeUnlocked(p[:chunk])
		p = p[chunk:]
		n += chunk
		b.fillCond.Broadcast()
	}
	return n, true
}

func (b *Buffer) writeUnlocked(p []byte) {
	for _, c := range p {
		b.data[b.writePos] = c
		b.writePos = (b.writePos + 1) % b.cap
	}
	b.fill += len(p)
}

// Get drains up to len(p) bytes for the consumer (output driver) goroutine.
// Blocks while empty and not stopped; returns (0, false) once stopped and
// drained.
func (b *Buffer) Get(p []byte) (n int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.fill == 0 {
		if b.stopped {
			return 0, false
		}
		b.fillCond.Wait()
	}

	chunk := len(p)
	if chunk > b.fill {
		chunk = b.fill
	}
	for i := 0; i < chunk; i++ {
		p[i] = b.data[b.readPos]
		b.readPos = (b.readPos + 1) % b.cap
	}
	b.fill -= chunk
	b.bytesSinceOrigin += int64(chunk)

	b.freeCond.Broadcast()
	if b.freeCB != nil {
		cb := b.freeCB
		n := chunk
		b.mu.Unlock()
		cb(n)
		b.mu.Lock()
	}
	return chunk, true
}

// GetFill returns the number of bytes currently queued.
func (b *Buffer) GetFill() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fill
}

// GetFree returns the number of bytes of spare capacity.
func (b *Buffer) GetFree() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap - b.fill
}

// TimeSet establishes time_origin: the wall-clock playback position that
// corresponds to zero bytes drained since this call.
func (b *Buffer) TimeSet(sec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeOrigin = time.Unix(0, int64(sec*float64(time.Second)))
	b.bytesSinceOrigin = 0
}

// TimeGet returns the estimated wall-clock playback position in seconds:
// time_origin plus audio drained since then, minus whatever the output
// driver itself is still holding in hardware/OS buffers.
func (b *Buffer) TimeGet() float64 {
	b.mu.Lock()
	bps := b.params.BytesPerSecond
	bytesSince := b.bytesSinceOrigin
	origin := b.timeOrigin
	getter := b.buffFillGet
	b.mu.Unlock()

	if bps <= 0 {
		return origin.Sub(time.Unix(0, 0)).Seconds()
	}

	driverFill := 0
	if getter != nil {
		driverFill = getter()
	}
	audibleBytes := bytesSince - int64(driverFill)
	if audibleBytes < 0 {
		audibleBytes = 0
	}

	base := origin.Sub(time.Unix(0, 0)).Seconds()
	return base + float64(audibleBytes)/float64(bps)
}

// Pause marks the buffer paused. The consumer goroutine is expected to
// check IsPaused and avoid draining while true.
func (b *Buffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

// Unpause clears the paused flag and wakes the consumer.
func (b *Buffer) Unpause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
	b.fillCond.Broadcast()
}

// IsPaused reports the current pause state.
func (b *Buffer) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Stop empties the buffer, wakes every waiter, and sets the stop flag,
// which remains set until Reset is called.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.fill = 0
	b.readPos = 0
	b.writePos = 0
	b.freeCond.Broadcast()
	b.fillCond.Broadcast()
}

// Reset zeroes fill state and clears the stop flag, readying the buffer
// for a new item, and wakes a consumer goroutine parked in RunConsumer
// waiting out the stopped period between tracks.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = false
	b.paused = false
	b.fill = 0
	b.readPos = 0
	b.writePos = 0
	b.bytesSinceOrigin = 0
	b.fillCond.Broadcast()
}

// PlayFunc writes a chunk to the output device and reports how many bytes
// were actually consumed, matching outdriver.Driver.Play's signature.
type PlayFunc func(buf []byte) (int, error)

// RunConsumer is the output-buffer consumer loop: it pulls drained chunks
// via Get and writes them to play, retrying on a short write. It never
// drains while the buffer is paused, and rides out Stop/Reset cycles
// between tracks rather than returning, so it's meant to be started once,
// in its own goroutine, for the Buffer's whole lifetime.
func (b *Buffer) RunConsumer(play PlayFunc, chunkBytes int) {
	buf := make([]byte, chunkBytes)
	for {
		b.waitUnpaused()

		n, ok := b.Get(buf)
		if !ok {
			b.waitForReset()
			continue
		}

		chunk := buf[:n]
		for len(chunk) > 0 {
			written, err := play(chunk)
			if err != nil || written <= 0 {
				break
			}
			chunk = chunk[written:]
		}
	}
}

// waitUnpaused blocks while the buffer is paused (and not stopped), so
// RunConsumer never calls Get while playback is paused.
func (b *Buffer) waitUnpaused() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.paused && !b.stopped {
		b.fillCond.Wait()
	}
}

// waitForReset blocks until Reset clears the stopped flag, so RunConsumer
// parks instead of busy-looping on Get between Stop and the next track's
// Reset.
func (b *Buffer) waitForReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.stopped {
		b.fillCond.Wait()
	}
}

// Wait blocks until the buffer is empty (used when draining before a
// device reopen, spec scenario S5).
func (b *Buffer) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.fill > 0 && !b.stopped {
		b.freeCond.Wait()
	}
}

// Stopped reports whether Stop has been called without an intervening
// Reset.
func (b *Buffer) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}
