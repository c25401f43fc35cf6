package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/protocol"
	"github.com/fluxradio/fluxd/internal/tagscache"
)

// conn is one connected control-socket client: a command reader, an
// event-queue writer, and the bits of per-client state (lock ownership,
// playlist/queue sync opt-in, pending tags requests) a handler needs.
type conn struct {
	id       events.ClientID
	tagsID   tagscache.ClientID
	nc       net.Conn
	r        *protocol.Reader
	w        *protocol.Writer
	queue    *events.Queue
	wakeCh   chan struct{}
	srv      *Server
	writeMu  sync.Mutex
	sendOpen atomic.Bool // true once SendEvents has been received
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	id := events.NewClientID()
	c := &conn{
		id:     id,
		tagsID: tagscache.NewClientID(),
		nc:     nc,
		r:      protocol.NewReader(nc),
		w:      protocol.NewWriter(nc),
		queue:  s.bus.Register(id),
		wakeCh: s.registerWaiter(id),
		srv:    s,
	}
	defer func() {
		s.bus.Unregister(id)
		s.unregisterWaiter(id)
		s.tags.ClearQueue(c.tagsID)
		nc.Close()
	}()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, done)
	}()

	c.readLoop(ctx)
	close(done)
	wg.Wait()
}

// readLoop decodes one protocol.Op at a time and dispatches it, replying
// inline on the same connection. It returns once the client disconnects
// or sends OpDisconnect/OpQuit, or ctx is canceled.
func (c *conn) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		op, err := c.r.I32()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("control connection read error", "err", err)
			}
			return
		}

		quit, err := c.dispatch(protocol.Op(op))
		if err != nil {
			slog.Warn("control command failed", "op", op, "err", err)
		}
		if quit {
			return
		}
	}
}

// writeLoop drains the client's event queue whenever woken and writes
// each event to the connection, serialized against command replies via
// writeMu. A write error means the client is gone; there is no
// reconnect/retry, the loop simply returns.
func (c *conn) writeLoop(ctx context.Context, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-c.wakeCh:
		}

		if !c.sendOpen.Load() {
			continue
		}

		pending := c.queue.Drain()
		if len(pending) == 0 {
			continue
		}

		c.writeMu.Lock()
		err := c.writeEvents(pending)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *conn) writeEvents(evs []events.Event) error {
	for _, ev := range evs {
		if err := protocol.WriteEvent(c.w, ev); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func (c *conn) replyStr(s string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.w.Str(s); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *conn) replyI32(v int32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.w.I32(v); err != nil {
		return err
	}
	return c.w.Flush()
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
