// Package bitrate implements the per-decoding-session bitrate timeline: a
// FIFO of (time, kbps) nodes appended only when the bitrate actually
// changes, queried by wall-clock position with older nodes discarded as
// they're passed.
package bitrate

import "sync"

type node struct {
	time    int
	bitrate int
}

// Timeline is a thread-safe bitrate FIFO. The zero value is ready to use.
type Timeline struct {
	mu    sync.Mutex
	nodes []node
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{}
}

// Add appends a (time, bitrate) node, skipping the append if the tail
// already reports the same bitrate, or already has a node at this exact
// time — matching bitrate_list_add's dedup rules.
func (t *Timeline) Add(timeSec int, kbps int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node{time: timeSec, bitrate: kbps})
		return
	}

	tail := &t.nodes[len(t.nodes)-1]
	if tail.bitrate == kbps {
		return
	}
	if tail.time == timeSec {
		return
	}
	t.nodes = append(t.nodes, node{time: timeSec, bitrate: kbps})
}

// Get returns the bitrate in effect at timeSec, discarding any nodes whose
// successor's time has already passed, or -1 if no bitrate information is
// recorded yet.
func (t *Timeline) Get(timeSec int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.nodes) == 0 {
		return -1
	}

	for len(t.nodes) > 1 && t.nodes[1].time <= timeSec {
		t.nodes = t.nodes[1:]
	}
	return t.nodes[0].bitrate
}

// Clear empties the timeline, used on seek and on starting a new item.
func (t *Timeline) Clear() {
	t.mu.Lock()
	t.nodes = nil
	t.mu.Unlock()
}

// Adopt replaces this timeline's contents with src's and empties src,
// used when a precache slot's timeline is inherited atomically by the
// live player.
func (t *Timeline) Adopt(src *Timeline) {
	src.mu.Lock()
	nodes := src.nodes
	src.nodes = nil
	src.mu.Unlock()

	t.mu.Lock()
	t.nodes = nodes
	t.mu.Unlock()
}
