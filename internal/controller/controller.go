// Package controller implements the audio controller: it owns the three
// playlists (user-visible, shuffled, queue), drives the player's decode
// loop, and runs the PLAY/PAUSE/STOP state machine, publishing a state
// change event through the event bus strictly after each transition is
// committed to shared state.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/player"
	"github.com/fluxradio/fluxd/internal/playlist"
)

// State is the controller's playback state.
type State int

const (
	StateStop State = iota
	StatePlay
	StatePause
)

func (s State) String() string {
	switch s {
	case StatePlay:
		return "PLAY"
	case StatePause:
		return "PAUSE"
	default:
		return "STOP"
	}
}

// PlistSelector picks which of playlist/shuffledPlist/queue supplies the
// currently playing item, mirroring its curr_plist pointer.
type PlistSelector int

const (
	SelectPlaylist PlistSelector = iota
	SelectShuffled
	SelectQueue
)

var ErrNoSuchFile = errors.New("controller: no such file in any playlist")

// Options mirrors the subset of runtime options the controller consults
// directly.
type Options struct {
	Shuffle             bool
	Repeat              bool
	AutoNext            bool
	QueueNextSongReturn bool
}

// Controller is the audio controller. Construct with New.
type Controller struct {
	mu sync.Mutex

	Options Options

	playlist      *playlist.Playlist
	shuffledPlist *playlist.Playlist
	queue         *playlist.Playlist
	currSel       PlistSelector

	currFile        string
	beforeQueueFile string
	lastStreamURL   string

	state         State
	prevState     State
	stopRequested bool

	player   *player.Player
	registry *decoder.Registry
	bus      *events.Bus

	playing sync.WaitGroup

	// OnSongChange and OnStop, if set, are invoked (outside any lock) once
	// a new file starts playing and once playback stops, respectively.
	// The server wires these to its external-hook runner.
	OnSongChange func(file string)
	OnStop       func()
}

// New builds a Controller bound to p (the decode engine), reg (decoder
// selection) and bus (event publication).
func New(p *player.Player, reg *decoder.Registry, bus *events.Bus) *Controller {
	return &Controller{
		playlist:      playlist.New(),
		shuffledPlist: playlist.New(),
		queue:         playlist.New(),
		player:        p,
		registry:      reg,
		bus:           bus,
	}
}

// Playlist returns the user-visible playlist, for server-side mutation
// (add/delete/move commands) and playlist-sync event sourcing.
func (c *Controller) Playlist() *playlist.Playlist { return c.playlist }

// Queue returns the fast-forward queue.
func (c *Controller) Queue() *playlist.Playlist { return c.queue }

// Player returns the decode engine, for callers that need to toggle
// equalizer/soft-mixer/mono settings or inspect live playback state.
func (c *Controller) Player() *player.Player { return c.player }

// State returns the current and previous playback state.
func (c *Controller) State() (current, previous State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.prevState
}

// CurrentFile returns the filename currently selected for playback (valid
// in PLAY/PAUSE), or "" in STOP.
func (c *Controller) CurrentFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currFile
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.prevState = c.state
	c.state = s
	c.mu.Unlock()
	c.bus.Broadcast(events.EvState, s.String())
}

func (c *Controller) selectedList() *playlist.Playlist {
	switch c.currSel {
	case SelectShuffled:
		return c.shuffledPlist
	case SelectQueue:
		return c.queue
	default:
		return c.playlist
	}
}

// Play starts playback of name. If name=="" and the queue is non-empty,
// the queue head plays instead; otherwise, when Shuffle is on,
// shuffledPlist is rebuilt from playlist and shuffled, with name (if
// given) swapped to the front.
func (c *Controller) Play(name string) error {
	c.Stop()

	c.mu.Lock()
	var list *playlist.Playlist
	var sel PlistSelector
	var file string

	if name == "" && c.queue.NotDeleted() > 0 {
		it, pos, ok := firstNonDeleted(c.queue)
		if ok {
			if c.beforeQueueFile == "" {
				c.beforeQueueFile = c.currFile
			}
			c.queue.Delete(pos)
			file = it.File
			list, sel = c.queue, SelectQueue
		}
	}

	if list == nil {
		if c.Options.Shuffle {
			c.shuffledPlist = c.playlist.Clone()
			c.shuffledPlist.Shuffle()
			if name != "" {
				c.shuffledPlist.SwapFirstFname(name)
			}
			list, sel = c.shuffledPlist, SelectShuffled
		} else {
			list, sel = c.playlist, SelectPlaylist
		}
		if file == "" {
			if name != "" {
				file = name
			} else if it, _, ok := firstNonDeleted(list); ok {
				file = it.File
			}
		}
	}
	c.currSel = sel
	c.mu.Unlock()

	if file == "" {
		return ErrNoSuchFile
	}
	if _, err := list.FindFname(file); err != nil && sel != SelectQueue {
		return fmt.Errorf("%w: %s", ErrNoSuchFile, file)
	}

	return c.startPlaying(file)
}

func (c *Controller) startPlaying(file string) error {
	backend := c.registry.Resolve(file, "")
	if backend == nil {
		return fmt.Errorf("controller: no decoder for %s", file)
	}

	c.mu.Lock()
	c.currFile = file
	c.mu.Unlock()
	c.setState(StatePlay)
	if c.OnSongChange != nil {
		c.OnSongChange(file)
	}

	nextFile, nextLocal := c.peekNext()

	c.playing.Add(1)
	go func() {
		defer c.playing.Done()
		err := c.player.Play(file, backend, !isURL(file), nextFile, nextLocal)
		if err != nil {
			slog.Error("playback error", "file", file, "err", err)
			c.bus.Broadcast(events.EvSrvError, err.Error())
		}
		c.onTrackFinished()
	}()
	return nil
}

// onTrackFinished runs go_to_another_file's successor-selection logic once
// the player's decode loop returns on its own (natural EOF), not via an
// explicit Stop/Seek request from the controller itself. It must not
// interrupt the player (it already stopped on its own) or join the
// playing WaitGroup (this IS the goroutine that WaitGroup is tracking; a
// self-join would deadlock).
func (c *Controller) onTrackFinished() {
	c.mu.Lock()
	stopReq := c.stopRequested
	c.stopRequested = false
	c.mu.Unlock()
	if stopReq {
		return
	}
	c.goToAnotherFile(false, false, false)
}

func (c *Controller) peekNext() (file string, isLocal bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.NotDeleted() > 0 {
		if it, _, ok := firstNonDeleted(c.queue); ok {
			return it.File, !isURL(it.File)
		}
	}
	list := c.selectedList()
	pos, err := list.FindFname(c.currFile)
	if err != nil {
		return "", false
	}
	nPos, ok := nextNonDeleted(list, pos)
	if !ok {
		return "", false
	}
	it, err := list.At(nPos)
	if err != nil {
		return "", false
	}
	return it.File, !isURL(it.File)
}

// GoToAnotherFile implements end-of-track selector for an
// explicit "next"/"previous" command from a client, interrupting whatever
// is currently playing.
func (c *Controller) GoToAnotherFile(playNext, playPrev bool) {
	c.goToAnotherFile(playNext, playPrev, true)
}

// goToAnotherFile is GoToAnotherFile's implementation. interrupt is false
// when called from onTrackFinished: the player already stopped itself, so
// there is nothing to interrupt and no WaitGroup to join.
func (c *Controller) goToAnotherFile(playNext, playPrev, interrupt bool) {
	c.mu.Lock()

	if (playNext || c.Options.AutoNext) && c.queue.NotDeleted() > 0 {
		it, pos, ok := firstNonDeleted(c.queue)
		if ok {
			if c.beforeQueueFile == "" {
				c.beforeQueueFile = c.currFile
			}
			c.queue.Delete(pos)
			c.currSel = SelectQueue
			c.mu.Unlock()
			if interrupt {
				c.stopLocked()
			}
			if err := c.startPlaying(it.File); err != nil {
				slog.Error("queue playback failed", "err", err)
			}
			return
		}
	}

	if c.currSel == SelectQueue && c.Options.QueueNextSongReturn && c.beforeQueueFile != "" {
		c.currFile = c.beforeQueueFile
		c.beforeQueueFile = ""
		c.currSel = boolToSelector(c.Options.Shuffle)
	}

	list := c.selectedList()
	if list.NotDeleted() == 0 && c.currSel == SelectShuffled {
		c.shuffledPlist = c.playlist.Clone()
		c.shuffledPlist.Shuffle()
		list = c.shuffledPlist
	}

	pos, err := list.FindFname(c.currFile)
	var nextFile string
	stop := false

	switch {
	case err != nil:
		stop = true

	case playPrev:
		if p, ok := prevNonDeleted(list, pos); ok {
			it, _ := list.At(p)
			nextFile = it.File
		} else if c.Options.Repeat {
			if p, ok := lastNonDeleted(list); ok {
				it, _ := list.At(p)
				nextFile = it.File
			} else {
				stop = true
			}
		} else {
			stop = true
		}

	case playNext || c.Options.AutoNext:
		if p, ok := nextNonDeleted(list, pos); ok {
			it, _ := list.At(p)
			nextFile = it.File
		} else if c.Options.Repeat {
			if c.currSel == SelectShuffled {
				c.shuffledPlist = c.playlist.Clone()
				c.shuffledPlist.Shuffle()
				list = c.shuffledPlist
			}
			if p, ok := firstNonDeletedPos(list); ok {
				it, _ := list.At(p)
				nextFile = it.File
			} else {
				stop = true
			}
		} else {
			stop = true
		}

	default:
		if !c.Options.Repeat {
			stop = true
		} else {
			nextFile = c.currFile
		}
	}
	c.mu.Unlock()

	if stop || nextFile == "" {
		if interrupt {
			c.Stop()
		} else {
			c.mu.Lock()
			c.currFile = ""
			c.mu.Unlock()
			c.setState(StateStop)
			if c.OnStop != nil {
				c.OnStop()
			}
		}
		return
	}

	if interrupt {
		c.stopLocked()
	}
	if err := c.startPlaying(nextFile); err != nil {
		slog.Error("advance playback failed", "err", err)
	}
}

// Pause implements pause: a URL currently playing cannot be
// resumed in place, so the controller stops outright, stashes the URL,
// and still reports PAUSE to clients.
func (c *Controller) Pause() {
	c.mu.Lock()
	file := c.currFile
	state := c.state
	c.mu.Unlock()

	if state != StatePlay {
		return
	}

	if isURL(file) {
		c.mu.Lock()
		c.lastStreamURL = file
		c.mu.Unlock()
		c.stopLocked()
		c.setState(StatePause)
		return
	}

	c.player.OutBuf().Pause()
	c.setState(StatePause)
}

// Unpause implements unpause: restarts a stashed URL, or
// resumes the output buffer for a local file.
func (c *Controller) Unpause() {
	c.mu.Lock()
	state := c.state
	url := c.lastStreamURL
	c.mu.Unlock()

	if state != StatePause {
		return
	}

	if url != "" {
		c.mu.Lock()
		c.lastStreamURL = ""
		c.mu.Unlock()
		if err := c.startPlaying(url); err != nil {
			slog.Error("resume stream failed", "err", err)
		}
		return
	}

	c.player.OutBuf().Unpause()
	c.setState(StatePlay)
}

// Seek moves sec seconds relative to the current position; JumpTo moves to
// an absolute position. Both are valid only in PLAY.
func (c *Controller) Seek(sec float64) error {
	return c.seekImpl(sec, true)
}

func (c *Controller) JumpTo(sec float64) error {
	return c.seekImpl(sec, false)
}

func (c *Controller) seekImpl(sec float64, relative bool) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StatePlay {
		return errors.New("controller: seek only valid during playback")
	}
	if relative {
		sec = c.player.OutBuf().TimeGet() + sec
	}
	c.player.RequestSeek(sec)
	return nil
}

// Stop halts playback and transitions to STOP, joining the decode
// goroutine so callers can rely on the player being idle once Stop
// returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasPlaying := c.state != StateStop
	c.mu.Unlock()
	if !wasPlaying {
		return
	}
	c.stopLocked()
	c.setState(StateStop)
	if c.OnStop != nil {
		c.OnStop()
	}
}

func (c *Controller) stopLocked() {
	c.mu.Lock()
	c.stopRequested = true
	c.mu.Unlock()

	c.player.RequestStop()
	c.playing.Wait()

	c.mu.Lock()
	c.currFile = ""
	c.mu.Unlock()
}

func isURL(name string) bool {
	for i := 0; i+2 < len(name); i++ {
		if name[i] == ':' && name[i+1] == '/' && name[i+2] == '/' {
			return true
		}
	}
	return false
}

func boolToSelector(shuffle bool) PlistSelector {
	if shuffle {
		return SelectShuffled
	}
	return SelectPlaylist
}

func firstNonDeleted(p *playlist.Playlist) (*playlist.Item, int, bool) {
	for i, it := range p.Items() {
		if !it.Deleted {
			return it, i, true
		}
	}
	return nil, -1, false
}

func firstNonDeletedPos(p *playlist.Playlist) (int, bool) {
	_, pos, ok := firstNonDeleted(p)
	return pos, ok
}

func lastNonDeleted(p *playlist.Playlist) (int, bool) {
	items := p.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if !items[i].Deleted {
			return i, true
		}
	}
	return -1, false
}

func nextNonDeleted(p *playlist.Playlist, from int) (int, bool) {
	items := p.Items()
	for i := from + 1; i < len(items); i++ {
		if !items[i].Deleted {
			return i, true
		}
	}
	return -1, false
}

func prevNonDeleted(p *playlist.Playlist, from int) (int, bool) {
	items := p.Items()
	for i := from - 1; i >= 0; i-- {
		if !items[i].Deleted {
			return i, true
		}
	}
	return -1, false
}
