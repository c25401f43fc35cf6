// Package playlist implements the playlist model: an
// ordered sequence of Items plus a red-black filename index, incremental
// total-time accounting, and a process-unique serial number.
//
// The locking/mutation shape (RWMutex-guarded slice, index rebuilt on
// structural reshuffle, small mutation helpers that keep derived state
// consistent) favors explicit index maintenance over a content-addressed
// library: filenames, not checksums, are the unit of identity, and
// deletions are tombstoned rather than removed so positions stay stable.
package playlist

import (
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/fluxradio/fluxd/internal/rbtree"
)

var ErrDuplicateFile = errors.New("playlist: file already present")
var ErrNotFound = errors.New("playlist: item not found")
var ErrIndexRange = errors.New("playlist: index out of range")

var lastSerial atomic.Int64

func nextSerial() int64 {
	return lastSerial.Add(1)
}

// Playlist is an ordered sequence of Items with a red-black index from
// filename to position, maintaining the following invariants:
//
//	num == notDeleted + deletedCount
//	at most one non-deleted entry per filename
//	index contains exactly the non-deleted items
//	totalTime == sum(tags.Time over non-deleted items with known time)
type Playlist struct {
	mu sync.RWMutex

	serial int64
	items  []*Item
	index  *rbtree.Tree // filename -> position in items

	notDeleted    int
	deletedCount  int
	totalTime     int
	itemsWithTime int
}

// New creates an empty Playlist with a fresh process-unique serial.
func New() *Playlist {
	return &Playlist{
		serial: nextSerial(),
		index:  rbtree.New(),
	}
}

// Serial returns this playlist's process-unique identifier.
func (p *Playlist) Serial() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serial
}

// SetSerial overrides the serial (used when a client informs the server
// which logical playlist it believes it is editing).
func (p *Playlist) SetSerial(s int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serial = s
}

// Len returns the total number of slots, deleted or not.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// NotDeleted returns the count of live (non-tombstoned) items.
func (p *Playlist) NotDeleted() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.notDeleted
}

// TotalTime returns the sum of Tags.Time over non-deleted items with known
// time, and the count of such items.
func (p *Playlist) TotalTime() (seconds int, itemsWithTime int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalTime, p.itemsWithTime
}

// At returns the item at position i, including deleted items. The caller
// must not retain a reference across a Shuffle/Delete that might move it.
func (p *Playlist) At(i int) (*Item, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.items) {
		return nil, ErrIndexRange
	}
	return p.items[i], nil
}

// Add appends item to the playlist. Returns ErrDuplicateFile if a
// non-deleted item with the same filename already exists.
func (p *Playlist) Add(item *Item) (pos int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !item.Deleted {
		if _, ok := p.index.Get(item.File); ok {
			return -1, ErrDuplicateFile
		}
	}

	pos = len(p.items)
	item.QueuePos = pos
	p.items = append(p.items, item)

	if item.Deleted {
		p.deletedCount++
	} else {
		p.notDeleted++
		p.index.Insert(item.File, pos)
		p.addTimeUnlocked(item)
	}
	return pos, nil
}

func (p *Playlist) addTimeUnlocked(item *Item) {
	if item.Tags != nil && item.Tags.HasTime() && item.Tags.Time != UnknownTime {
		p.totalTime += item.Tags.Time
		p.itemsWithTime++
	}
}

func (p *Playlist) removeTimeUnlocked(item *Item) {
	if item.Tags != nil && item.Tags.HasTime() && item.Tags.Time != UnknownTime {
		p.totalTime -= item.Tags.Time
		p.itemsWithTime--
	}
}

// FindFname returns the position of the non-deleted item with the given
// filename. Returns ErrNotFound if absent or only a deleted copy exists
// (callers wanting deleted entries must scan linearly via
// FindFnameIncludeDeleted).
func (p *Playlist) FindFname(file string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.index.Get(file)
	if !ok {
		return -1, ErrNotFound
	}
	return pos, nil
}

// FindFnameIncludeDeleted scans linearly and returns the first item (deleted
// or not) with the given filename.
func (p *Playlist) FindFnameIncludeDeleted(file string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, it := range p.items {
		if it.File == file {
			return i, nil
		}
	}
	return -1, ErrNotFound
}

// Delete tombstones the item at pos: its content is freed but the filename
// slot is retained. Returns ErrIndexRange if pos is invalid, or
// ErrNotFound if already deleted.
func (p *Playlist) Delete(pos int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos < 0 || pos >= len(p.items) {
		return ErrIndexRange
	}
	item := p.items[pos]
	if item.Deleted {
		return ErrNotFound
	}

	p.removeTimeUnlocked(item)
	p.index.Delete(item.File)
	item.MarkDeleted()

	p.notDeleted--
	p.deletedCount++
	return nil
}

// UpdateTags replaces the tags of the non-deleted item at pos, keeping the
// incremental total-time aggregate consistent.
func (p *Playlist) UpdateTags(pos int, tags *Tags) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos < 0 || pos >= len(p.items) {
		return ErrIndexRange
	}
	item := p.items[pos]
	if item.Deleted {
		return ErrNotFound
	}

	p.removeTimeUnlocked(item)
	item.Tags = tags
	if tags != nil && tags.Title != "" {
		item.TitleTags = tags.Title
	}
	p.addTimeUnlocked(item)
	return nil
}

// Clear removes every item and resets all aggregates. The serial is kept
// unless the caller explicitly assigns a new one, matching the semantics of
// clearing a list in place rather than replacing it.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
	p.index = rbtree.New()
	p.notDeleted = 0
	p.deletedCount = 0
	p.totalTime = 0
	p.itemsWithTime = 0
}

// Items returns a shallow copy of the live item slice (including deleted
// tombstones), safe to range over without holding the lock.
func (p *Playlist) Items() []*Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Item, len(p.items))
	copy(out, p.items)
	return out
}

// Shuffle randomizes item order in place and rebuilds the filename index.
func (p *Playlist) Shuffle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	rand.Shuffle(len(p.items), func(i, j int) {
		p.items[i], p.items[j] = p.items[j], p.items[i]
	})
	p.rebuildIndexUnlocked()
}

func (p *Playlist) rebuildIndexUnlocked() {
	p.index = rbtree.New()
	for i, it := range p.items {
		it.QueuePos = i
		if !it.Deleted {
			p.index.Insert(it.File, i)
		}
	}
}

// SwapFirstFname moves the item with the given filename to index 0. It is a
// no-op if the name is absent or already at index 0.
func (p *Playlist) SwapFirstFname(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.index.Get(name)
	if !ok || pos == 0 {
		return
	}

	item := p.items[pos]
	copy(p.items[1:pos+1], p.items[0:pos])
	p.items[0] = item
	p.rebuildIndexUnlocked()
}

// Move relocates the item at `from` to position `to`, shifting the items in
// between. Used by list_move / queue_move wire commands.
func (p *Playlist) Move(from, to int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexRange
	}
	if from == to {
		return nil
	}

	item := p.items[from]
	p.items = append(p.items[:from], p.items[from+1:]...)
	p.items = append(p.items, nil)
	copy(p.items[to+1:], p.items[to:])
	p.items[to] = item

	p.rebuildIndexUnlocked()
	return nil
}

// Clone returns a deep-enough copy for building a shuffled derivative list:
// item pointers are shared (so tag updates propagate) but the slice, index
// and serial are independent.
func (p *Playlist) Clone() *Playlist {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := &Playlist{
		serial:        nextSerial(),
		items:         make([]*Item, len(p.items)),
		index:         rbtree.New(),
		notDeleted:    p.notDeleted,
		deletedCount:  p.deletedCount,
		totalTime:     p.totalTime,
		itemsWithTime: p.itemsWithTime,
	}
	copy(cp.items, p.items)
	for i, it := range cp.items {
		if !it.Deleted {
			cp.index.Insert(it.File, i)
		}
	}
	return cp
}
