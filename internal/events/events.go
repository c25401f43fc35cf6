// Package events implements the per-client event queue and broadcast
// semantics: every client connected to the control socket gets its own
// queue, broadcast() deep-copies payloads per client, and a self-pipe byte
// wakes the server's accept/dispatch loop whenever a queue gains data.
package events

import (
	"sync"

	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/google/uuid"
)

// Type enumerates the event types a client may receive.
type Type int

const (
	// Playback
	EvState Type = iota
	EvCTime
	EvBitrate
	EvAvgBitrate
	EvRate
	EvChannels
	EvTags
	EvAudioStart
	EvAudioStop

	// Playlist (opt-in via playlist sync)
	EvPlistAdd
	EvPlistDel
	EvPlistMove
	EvPlistClear

	// Queue
	EvQueueAdd
	EvQueueDel
	EvQueueMove
	EvQueueClear

	// Status/control
	EvStatusMsg
	EvOptions
	EvMixerChange
	EvSrvError
	EvSendPlist
	EvExit
	EvBusy
	EvPong
	EvFileTags
	EvData
)

// MovePair is the payload for EvPlistMove/EvQueueMove: an item relocated
// from From to To.
type MovePair struct {
	From int
	To   int
}

// Event is one typed, already-deep-copied payload ready to be written to a
// client's connection.
type Event struct {
	Type Type
	Data any
}

// ClientID identifies one connected control-socket client.
type ClientID uuid.UUID

// NewClientID returns a fresh client identifier.
func NewClientID() ClientID {
	return ClientID(uuid.New())
}

// Queue is one client's FIFO of pending events, plus whether the client
// has opted into playlist-sync events (EvPlist*).
type Queue struct {
	mu         sync.Mutex
	pending    []Event
	playlist   bool
	plistQueue bool
}

func newQueue() *Queue {
	return &Queue{}
}

// SetPlaylistSync toggles whether this client receives EvPlist* events.
func (q *Queue) SetPlaylistSync(on bool) {
	q.mu.Lock()
	q.playlist = on
	q.mu.Unlock()
}

// SetQueueSync toggles whether this client receives EvQueue* events.
func (q *Queue) SetQueueSync(on bool) {
	q.mu.Lock()
	q.plistQueue = on
	q.mu.Unlock()
}

func (q *Queue) push(e Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
}

// Drain removes and returns every event currently queued, in order. A
// client connection writer calls this on each write-ready wake-up; events
// it cannot fully write are the caller's responsibility to requeue via
// Requeue.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Requeue puts events back at the front of the queue, used when a partial
// non-blocking write couldn't drain everything Drain returned.
func (q *Queue) Requeue(events []Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(events, q.pending...)
	q.mu.Unlock()
}

func (q *Queue) wantsPlaylist() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playlist
}

func (q *Queue) wantsQueueSync() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.plistQueue
}

// WakeFunc is called once per Broadcast (not once per client) to kick a
// blocked accept/dispatch select loop via a self-pipe write.
type WakeFunc func()

// Bus fans events out to every registered client queue.
type Bus struct {
	mu      sync.Mutex
	clients map[ClientID]*Queue
	wake    WakeFunc
}

// NewBus returns an empty event bus. wake, if non-nil, is invoked after
// every Broadcast/Send so the server's select loop can wake promptly.
func NewBus(wake WakeFunc) *Bus {
	return &Bus{clients: make(map[ClientID]*Queue), wake: wake}
}

// Register adds a new client and returns its queue.
func (b *Bus) Register(id ClientID) *Queue {
	q := newQueue()
	b.mu.Lock()
	b.clients[id] = q
	b.mu.Unlock()
	return q
}

// Unregister removes a client's queue (on disconnect).
func (b *Bus) Unregister(id ClientID) {
	b.mu.Lock()
	delete(b.clients, id)
	b.mu.Unlock()
}

// Queue returns a client's queue, or nil if unknown.
func (b *Bus) Queue(id ClientID) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[id]
}

// Send enqueues one event for a single client.
func (b *Bus) Send(id ClientID, typ Type, data any) {
	q := b.Queue(id)
	if q == nil {
		return
	}
	q.push(Event{Type: typ, Data: cloneFor(typ, data)})
	b.notify()
}

// Broadcast enqueues a deep copy of (typ, data) for every registered
// client, skipping EvPlist*/EvQueue* events for clients that haven't
// opted into the corresponding sync mode.
func (b *Bus) Broadcast(typ Type, data any) {
	b.mu.Lock()
	clients := make([]*Queue, 0, len(b.clients))
	for _, q := range b.clients {
		clients = append(clients, q)
	}
	b.mu.Unlock()

	for _, q := range clients {
		if isPlaylistEvent(typ) && !q.wantsPlaylist() {
			continue
		}
		if isQueueEvent(typ) && !q.wantsQueueSync() {
			continue
		}
		q.push(Event{Type: typ, Data: cloneFor(typ, data)})
	}
	b.notify()
}

func (b *Bus) notify() {
	if b.wake != nil {
		b.wake()
	}
}

func isPlaylistEvent(t Type) bool {
	switch t {
	case EvPlistAdd, EvPlistDel, EvPlistMove, EvPlistClear:
		return true
	}
	return false
}

func isQueueEvent(t Type) bool {
	switch t {
	case EvQueueAdd, EvQueueDel, EvQueueMove, EvQueueClear:
		return true
	}
	return false
}

// cloneFor applies the deep-copy policy per event type: item copy for ADD
// events, string copy for DEL/MSG events (strings are already immutable in
// Go, so no action needed), move-pair copy for MOVE events (MovePair is a
// plain value type, also already copied on assignment).
func cloneFor(_ Type, data any) any {
	switch v := data.(type) {
	case *playlist.Item:
		return v.Clone()
	default:
		return data
	}
}
