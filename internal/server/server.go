// Package server implements the control-socket accept loop: one UNIX
// domain socket, one goroutine per connected client decoding
// protocol.Op commands and a paired goroutine draining that client's
// event queue, dispatching both against the shared controller, tags
// cache and output driver.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/fluxradio/fluxd/internal/controller"
	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/eqpreset"
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/hooks"
	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/protocol"
	"github.com/fluxradio/fluxd/internal/tagscache"
)

// Options configures a Server at construction time.
type Options struct {
	SocketPath    string
	TagsCacheDir  string
	TagsCacheSize int
	TagsSyncEvery int
	EqPresetDir   string
	OnSongChange  string
	OnStop        string
}

// Server owns the control socket and wires client commands to the audio
// controller, decoder registry, output driver and tags cache.
type Server struct {
	opts Options

	ctl    *controller.Controller
	reg    *decoder.Registry
	driver outdriver.Driver
	bus    *events.Bus
	tags   *tagscache.Cache
	eq     *eqpreset.Manager
	hooks  hooks.Runner

	mu       sync.Mutex
	waiters  map[events.ClientID]chan struct{}
	lockedBy events.ClientID
	hasLock  bool
	mixerVol int // last softmixer volume, retained across toggle off/on

	listener net.Listener
	cancel   context.CancelFunc
}

// New builds a Server, including its event bus and tags cache, but without
// a controller attached yet: the controller must be built against Bus()
// and handed back via AttachController before Start is called. driver may
// be nil if no output device is available yet; mixer commands then report
// failure instead of panicking.
func New(opts Options, reg *decoder.Registry, driver outdriver.Driver, eq *eqpreset.Manager) (*Server, error) {
	s := &Server{
		opts:     opts,
		reg:      reg,
		driver:   driver,
		eq:       eq,
		waiters:  make(map[events.ClientID]chan struct{}),
		mixerVol: 100,
	}
	s.bus = events.NewBus(s.wakeAll)

	tags, err := tagscache.Open(opts.TagsCacheDir, opts.TagsCacheSize, opts.TagsSyncEvery, reg, s.deliverFileTags)
	if err != nil {
		return nil, fmt.Errorf("server: open tags cache: %w", err)
	}
	s.tags = tags

	return s, nil
}

// Bus returns the event bus a controller must be constructed with before
// being passed to AttachController.
func (s *Server) Bus() *events.Bus { return s.bus }

// AttachController finishes wiring a Server to the controller built
// against its Bus(), hooking the song-change/stop callbacks. Call before
// Start.
func (s *Server) AttachController(ctl *controller.Controller) {
	s.ctl = ctl
	ctl.OnSongChange = func(file string) { s.hooks.RunSongChange(s.opts.OnSongChange, file) }
	ctl.OnStop = func() { s.hooks.RunStop(s.opts.OnStop) }
}

// Close stops the tags cache and releases resources that outlive
// individual connections. Call after Start returns.
func (s *Server) Close() error {
	return s.tags.Close()
}

// Start listens on the configured socket and serves connections until
// ctx is canceled, at which point it closes the listener and returns.
func (s *Server) Start(ctx context.Context) error {
	if err := removeStaleSocket(s.opts.SocketPath); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			wg.Wait()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

// quit triggers the same shutdown Start would perform on context
// cancellation, for the client-initiated OpQuit command.
func (s *Server) quit() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// wakeAll is the event bus's wake callback: it fires on every
// Broadcast/Send regardless of which client the event is for, so it
// signals every connection's writer goroutine and lets each decide
// (via its own queue) whether it actually has anything to drain.
func (s *Server) wakeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) registerWaiter(id events.ClientID) chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.waiters[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) unregisterWaiter(id events.ClientID) {
	s.mu.Lock()
	delete(s.waiters, id)
	if s.lockedBy == id {
		s.hasLock = false
	}
	s.mu.Unlock()
}

// deliverFileTags is the tags cache's ResponseFunc: it translates a
// resolved lookup into an EvFileTags push for whichever control-socket
// client asked for it.
func (s *Server) deliverFileTags(client tagscache.ClientID, file string, tags *playlist.Tags) {
	s.bus.Send(events.ClientID(client), events.EvFileTags, protocol.FileTags{File: file, Tags: tags})
}

// removeStaleSocket clears a leftover socket file from an unclean
// shutdown. If another instance is actually still listening, the
// subsequent net.Listen call fails with EADDRINUSE and the error
// surfaces normally.
func removeStaleSocket(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("server: clearing stale socket: %w", err)
	}
	return nil
}
