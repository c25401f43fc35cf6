// Package tagscache implements a persistent, LRU-evicted key/value store
// mapping filename to decoded tags, with a background reader goroutine
// that round-robins per-client request queues so a slow tag read on one
// client's behalf never blocks another's.
//
// The on-disk format is a single encoding/gob-serialized map flushed
// wholesale, the same load-whole-map/encode-whole-map shape as a small
// persistent key/value map: simpler than a per-key embedded database, and
// sufficient for a cache sized in the thousands of entries.
package tagscache

import (
	"encoding/gob"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/google/uuid"
)

// record is the on-disk unit: a tags snapshot plus the bookkeeping needed
// to decide whether it's stale or next in line for eviction.
type record struct {
	ModTime time.Time
	ATime   time.Time
	Tags    playlist.Tags
}

// ClientID identifies a per-client request queue.
type ClientID = uuid.UUID

// NewClientID returns a fresh client identifier for a tags-cache request
// queue (distinct from events.ClientID; a control-socket client uses one
// of each).
func NewClientID() ClientID {
	return uuid.New()
}

type request struct {
	file string
	mask playlist.FilledMask
}

// ResponseFunc delivers a completed tags lookup back to whatever is
// waiting on it (typically: push a tags-ready event to the requesting
// client).
type ResponseFunc func(client ClientID, file string, tags *playlist.Tags)

// Cache is a persistent tag store with background, per-client-fair
// resolution of cache misses.
type Cache struct {
	dbPath    string
	versioned versionInfo
	maxItems  int
	syncEvery int

	dbMu    sync.Mutex
	records map[string]record
	writes  int

	reg      *decoder.Registry
	onResult ResponseFunc

	qMu      sync.Mutex
	queues   map[ClientID][]request
	order    []ClientID
	wake     chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
}

type versionInfo struct {
	CacheFormatVersion int
	DBMajor            int
	DBMinor            int
	BuildRevision      string
}

// CacheFormatVersion and DBMajor/DBMinor bump whenever the record layout
// or cache semantics change incompatibly with an existing on-disk cache.
const (
	CacheFormatVersion = 1
	DBMajor            = 1
	DBMinor            = 0
)

// Open loads (or creates) the cache under dir, purging dir first if the
// stored version tag doesn't match the running binary's. maxItems bounds
// the number of retained records (Options.TagsCacheSize); syncEvery is how
// many writes accumulate before a disk flush.
func Open(dir string, maxItems, syncEvery int, reg *decoder.Registry, onResult ResponseFunc) (*Cache, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if syncEvery <= 0 {
		syncEvery = 32
	}

	want := versionInfo{
		CacheFormatVersion: CacheFormatVersion,
		DBMajor:            DBMajor,
		DBMinor:            DBMinor,
		BuildRevision:      buildRevision(),
	}

	versionPath := filepath.Join(dir, "version")
	if !versionMatches(versionPath, want) {
		slog.Info("tags cache version mismatch, purging", "dir", dir)
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := writeVersion(versionPath, want); err != nil {
		return nil, err
	}

	c := &Cache{
		dbPath:    filepath.Join(dir, "tags.db"),
		versioned: want,
		maxItems:  maxItems,
		syncEvery: syncEvery,
		records:   make(map[string]record),
		reg:       reg,
		onResult:  onResult,
		queues:    make(map[ClientID][]request),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	go c.readerLoop()
	return c, nil
}

// Close stops the background reader and flushes pending writes to disk.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	return c.flushLocked()
}

func (c *Cache) load() error {
	f, err := os.Open(c.dbPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	dec := gob.NewDecoder(f)
	return dec.Decode(&c.records)
}

func (c *Cache) flushLocked() error {
	tmp := c.dbPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(c.records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.dbPath)
}

// GetImmediate returns a copy of the cached tags for file if present and
// covering mask, for callers that cannot wait on the background reader
// (e.g. a synchronous CLI query).
func (c *Cache) GetImmediate(file string, mask playlist.FilledMask) (*playlist.Tags, bool) {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	rec, ok := c.records[file]
	if !ok || rec.Tags.Filled&mask != mask {
		return nil, false
	}
	t := rec.Tags
	return t.Clone(), true
}

// AddRequest enqueues a tag lookup for client. If a fresh (mtime-matching),
// complete record already exists, it's delivered synchronously via
// onResult before AddRequest returns — the fast path the background
// reader never needs to see.
func (c *Cache) AddRequest(file string, mask playlist.FilledMask, client ClientID) {
	if tags, fresh := c.freshRecord(file, mask); fresh {
		if c.onResult != nil {
			c.onResult(client, file, tags)
		}
		return
	}

	c.qMu.Lock()
	if _, exists := c.queues[client]; !exists {
		c.order = append(c.order, client)
	}
	c.queues[client] = append(c.queues[client], request{file: file, mask: mask})
	c.qMu.Unlock()
	c.nudge()
}

func (c *Cache) freshRecord(file string, mask playlist.FilledMask) (*playlist.Tags, bool) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, false
	}
	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	rec, ok := c.records[file]
	if !ok || !rec.ModTime.Equal(info.ModTime()) || rec.Tags.Filled&mask != mask {
		return nil, false
	}
	rec.ATime = time.Now()
	c.records[file] = rec
	t := rec.Tags
	return t.Clone(), true
}

// ClearQueue discards every pending request for client (on disconnect).
func (c *Cache) ClearQueue(client ClientID) {
	c.qMu.Lock()
	defer c.qMu.Unlock()
	delete(c.queues, client)
	c.removeFromOrder(client)
}

// ClearUpTo drops every request for client up to and including file
// (used when the client has moved on and no longer cares about earlier
// entries in its own queue, e.g. skipping ahead in a directory listing).
func (c *Cache) ClearUpTo(file string, client ClientID) {
	c.qMu.Lock()
	defer c.qMu.Unlock()
	q := c.queues[client]
	for i, r := range q {
		if r.file == file {
			c.queues[client] = append([]request(nil), q[i+1:]...)
			return
		}
	}
}

func (c *Cache) removeFromOrder(client ClientID) {
	for i, id := range c.order {
		if id == client {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) nudge() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// readerLoop round-robins client queues, resolving one request per client
// per pass so no single client's backlog starves the others.
func (c *Cache) readerLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.wake:
		}

		for {
			client, req, ok := c.nextRequest()
			if !ok {
				break
			}
			tags := c.resolve(req.file, req.mask)
			if c.onResult != nil {
				c.onResult(client, req.file, tags)
			}
			select {
			case <-c.stopCh:
				return
			default:
			}
		}
	}
}

func (c *Cache) nextRequest() (ClientID, request, bool) {
	c.qMu.Lock()
	defer c.qMu.Unlock()
	for len(c.order) > 0 {
		client := c.order[0]
		q := c.queues[client]
		if len(q) == 0 {
			c.order = c.order[1:]
			delete(c.queues, client)
			continue
		}
		req := q[0]
		c.queues[client] = q[1:]
		c.order = append(c.order[1:], client)
		return client, req, true
	}
	return ClientID{}, request{}, false
}

// resolve looks up file under the record lock, filling any bits mask
// demands that aren't already present via the decoder registry, then
// writes the record back.
func (c *Cache) resolve(file string, mask playlist.FilledMask) *playlist.Tags {
	info, statErr := os.Stat(file)

	c.dbMu.Lock()
	rec, ok := c.records[file]
	needsFill := !ok || statErr != nil || !rec.ModTime.Equal(info.ModTime()) || rec.Tags.Filled&mask != mask
	if ok && statErr == nil && rec.ModTime.Equal(info.ModTime()) {
		// Keep whatever was already filled; fill() adds only the missing bits.
	} else {
		rec = record{Tags: playlist.Tags{Time: playlist.UnknownTime}}
	}
	c.dbMu.Unlock()

	if needsFill && statErr == nil {
		c.fill(file, &rec.Tags, mask)
		rec.ModTime = info.ModTime()
	}
	rec.ATime = time.Now()

	c.dbMu.Lock()
	c.evictIfNeededLocked(file)
	c.records[file] = rec
	c.writes++
	if c.writes >= c.syncEvery {
		c.writes = 0
		if err := c.flushLocked(); err != nil {
			slog.Warn("tags cache flush failed", "error", err)
		}
	}
	tags := rec.Tags
	c.dbMu.Unlock()

	return tags.Clone()
}

func (c *Cache) fill(file string, tags *playlist.Tags, mask playlist.FilledMask) {
	backend := c.reg.Resolve(file, "")
	if backend == nil {
		return
	}
	if err := backend.Info(file, tags, mask); err != nil {
		slog.Debug("tag extraction failed", "file", file, "error", err)
	}
}

// evictIfNeededLocked must be called with dbMu held. It drops the
// minimum-ATime record before an insert once the cache is at capacity,
// skipping the key about to be (re)written.
func (c *Cache) evictIfNeededLocked(skip string) {
	if _, exists := c.records[skip]; exists {
		return
	}
	if len(c.records) < c.maxItems {
		return
	}
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, r := range c.records {
		if first || r.ATime.Before(oldestTime) {
			oldestKey, oldestTime = k, r.ATime
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.records, oldestKey)
	}
}
