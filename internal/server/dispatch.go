package server

import (
	"errors"
	"fmt"

	"github.com/fluxradio/fluxd/internal/equalizer"
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/protocol"
)

// dispatch decodes op's payload (if any), runs it against the shared
// controller/driver/tags cache, and writes whatever reply that op
// carries. quit is true once the connection should be torn down
// (OpDisconnect, OpQuit, or a framing error bad enough that the
// connection can no longer be trusted).
func (c *conn) dispatch(op protocol.Op) (quit bool, err error) {
	srv := c.srv

	switch op {
	case protocol.OpPlay:
		file, err := c.r.Str()
		if err != nil {
			return true, err
		}
		return false, srv.ctl.Play(file)

	case protocol.OpStop:
		srv.ctl.Stop()
		return false, nil

	case protocol.OpPause:
		srv.ctl.Pause()
		return false, nil

	case protocol.OpUnpause:
		srv.ctl.Unpause()
		return false, nil

	case protocol.OpNext:
		srv.ctl.GoToAnotherFile(true, false)
		return false, nil

	case protocol.OpPrev:
		srv.ctl.GoToAnotherFile(false, true)
		return false, nil

	case protocol.OpSeek:
		sec, err := c.r.I32()
		if err != nil {
			return true, err
		}
		return false, srv.ctl.Seek(float64(sec))

	case protocol.OpJumpTo:
		sec, err := c.r.I32()
		if err != nil {
			return true, err
		}
		return false, srv.ctl.JumpTo(float64(sec))

	case protocol.OpGetState:
		state, _ := srv.ctl.State()
		return false, c.replyStr(state.String())

	case protocol.OpGetCTime:
		return false, c.replyI32(int32(srv.ctl.Player().OutBuf().TimeGet()))

	case protocol.OpGetBitrate:
		ctime := int(srv.ctl.Player().OutBuf().TimeGet())
		return false, c.replyI32(int32(srv.ctl.Player().BitrateAt(ctime)))

	case protocol.OpGetRate:
		return false, c.replyI32(int32(srv.ctl.Player().CurrentParams().Rate))

	case protocol.OpGetChannels:
		return false, c.replyI32(int32(srv.ctl.Player().CurrentParams().Channels))

	case protocol.OpGetSName:
		return false, c.replyStr(srv.ctl.CurrentFile())

	case protocol.OpSetOption:
		name, err := c.r.Str()
		if err != nil {
			return true, err
		}
		val, err := c.r.I32()
		if err != nil {
			return true, err
		}
		return false, srv.setOption(name, val)

	case protocol.OpGetOption:
		name, err := c.r.Str()
		if err != nil {
			return true, err
		}
		v, oerr := srv.getOption(name)
		if rerr := c.replyI32(v); rerr != nil {
			return true, rerr
		}
		return false, oerr

	case protocol.OpSetMixer:
		vol, err := c.r.I32()
		if err != nil {
			return true, err
		}
		if srv.driver == nil {
			return false, errNoDriver
		}
		srv.driver.SetMixer(int(vol))
		return false, nil

	case protocol.OpGetMixer:
		if srv.driver == nil {
			return false, c.replyI32WithErr(0, errNoDriver)
		}
		return false, c.replyI32(int32(srv.driver.ReadMixer()))

	case protocol.OpToggleMixerChannel:
		if srv.driver == nil {
			return false, c.replyStrWithErr("", errNoDriver)
		}
		srv.driver.ToggleMixerChannel()
		return false, c.replyStr(srv.driver.GetMixerChannelName())

	case protocol.OpToggleSoftmixer:
		return false, c.replyI32(boolToI32(srv.toggleSoftmixer()))

	case protocol.OpToggleEqualizer:
		return false, c.replyI32(boolToI32(srv.toggleEqualizer()))

	case protocol.OpEqualizerPrev:
		name, err := srv.equalizerStep(srv.eq.Prev)
		if err != nil {
			return false, c.replyStrWithErr("", err)
		}
		return false, c.replyStr(name)

	case protocol.OpEqualizerNext:
		name, err := srv.equalizerStep(srv.eq.Next)
		if err != nil {
			return false, c.replyStrWithErr("", err)
		}
		return false, c.replyStr(name)

	case protocol.OpEqualizerRefresh:
		params := srv.ctl.Player().CurrentParams()
		srv.eq.Reconfigure(params.Channels, float64(params.Rate))
		name, err := srv.equalizerStep(srv.eq.Current)
		if err != nil {
			return false, c.replyStrWithErr("", err)
		}
		return false, c.replyStr(name)

	case protocol.OpToggleMakeMono:
		mono := srv.ctl.Player().ToggleMakeMono()
		return false, c.replyI32(boolToI32(mono))

	case protocol.OpListAdd:
		return false, srv.listAdd(c)

	case protocol.OpDelete:
		return false, srv.listDelete(c)

	case protocol.OpListClear:
		srv.ctl.Playlist().Clear()
		srv.bus.Broadcast(events.EvPlistClear, nil)
		return false, nil

	case protocol.OpListMove:
		return false, srv.listMove(c, srv.ctl.Playlist(), events.EvPlistMove)

	case protocol.OpQueueAdd:
		return false, srv.queueAdd(c)

	case protocol.OpQueueDel:
		return false, srv.queueDelete(c)

	case protocol.OpQueueClear:
		srv.ctl.Queue().Clear()
		srv.bus.Broadcast(events.EvQueueClear, nil)
		return false, nil

	case protocol.OpQueueMove:
		return false, srv.listMove(c, srv.ctl.Queue(), events.EvQueueMove)

	case protocol.OpGetPlist:
		return false, c.writePlistSnapshot(srv.ctl.Playlist())

	case protocol.OpGetQueue:
		return false, c.writePlistSnapshot(srv.ctl.Queue())

	case protocol.OpSendPlist:
		return false, srv.sendPlist(c)

	case protocol.OpCliPlistAdd:
		return false, srv.listAdd(c)

	case protocol.OpCliPlistDel:
		return false, srv.listDelete(c)

	case protocol.OpCliPlistClear:
		srv.ctl.Playlist().Clear()
		srv.bus.Broadcast(events.EvPlistClear, nil)
		return false, nil

	case protocol.OpCliPlistMove:
		return false, srv.listMove(c, srv.ctl.Playlist(), events.EvPlistMove)

	case protocol.OpPlistGetSerial:
		return false, c.replyI32(int32(srv.ctl.Playlist().Serial()))

	case protocol.OpPlistSetSerial:
		serial, err := c.r.I32()
		if err != nil {
			return true, err
		}
		srv.ctl.Playlist().SetSerial(int64(serial))
		return false, nil

	case protocol.OpGetSerial:
		return false, c.replyI32(int32(srv.ctl.Playlist().Serial()))

	case protocol.OpGetTags:
		c.writeMu.Lock()
		err := c.w.Tags(srv.ctl.Player().CurrentTags())
		if err == nil {
			err = c.w.Flush()
		}
		c.writeMu.Unlock()
		return false, err

	case protocol.OpGetFileTags:
		return false, srv.getFileTags(c)

	case protocol.OpAbortTagsRequests:
		file, err := c.r.Str()
		if err != nil {
			return true, err
		}
		srv.tags.ClearUpTo(file, c.tagsID)
		return false, nil

	case protocol.OpGetMixerChannelName:
		if srv.driver == nil {
			return false, c.replyStrWithErr("", errNoDriver)
		}
		return false, c.replyStr(srv.driver.GetMixerChannelName())

	case protocol.OpSendEvents:
		c.sendOpen.Store(true)
		select {
		case c.wakeCh <- struct{}{}:
		default:
		}
		return false, nil

	case protocol.OpCanSendPlist:
		return false, c.replyI32(1)

	case protocol.OpPing:
		srv.bus.Send(c.id, events.EvPong, nil)
		return false, nil

	case protocol.OpLock:
		return false, c.replyI32(boolToI32(srv.lock(c.id)))

	case protocol.OpUnlock:
		srv.unlock(c.id)
		return false, nil

	case protocol.OpDisconnect:
		return true, nil

	case protocol.OpQuit:
		srv.quit()
		return true, nil

	default:
		return false, fmt.Errorf("server: unknown opcode %d", op)
	}
}

var errNoDriver = errors.New("server: no output driver available")

func (c *conn) replyI32WithErr(v int32, err error) error {
	if werr := c.replyI32(v); werr != nil {
		return werr
	}
	return err
}

func (c *conn) replyStrWithErr(s string, err error) error {
	if werr := c.replyStr(s); werr != nil {
		return werr
	}
	return err
}

func (s *Server) toggleSoftmixer() bool {
	p := s.ctl.Player()
	if mixer := p.SoftMixer(); mixer != nil {
		s.mixerVol = mixer.Vol
		p.SetSoftMixer(nil)
		return false
	}
	p.SetSoftMixer(&equalizer.SoftMixer{Vol: s.mixerVol})
	return true
}

func (s *Server) toggleEqualizer() bool {
	p := s.ctl.Player()
	if p.Equalizer() != nil {
		p.SetEqualizer(nil)
		return false
	}
	eqz, err := s.eq.Current()
	if err != nil || eqz == nil {
		return false
	}
	p.SetEqualizer(eqz)
	return true
}

func (s *Server) equalizerStep(step func() (*equalizer.Equalizer, error)) (string, error) {
	eqz, err := step()
	if err != nil {
		return "", err
	}
	s.ctl.Player().SetEqualizer(eqz)
	return s.eq.Name(), nil
}

func (s *Server) lock(id events.ClientID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLock && s.lockedBy != id {
		return false
	}
	s.hasLock = true
	s.lockedBy = id
	return true
}

func (s *Server) unlock(id events.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLock && s.lockedBy == id {
		s.hasLock = false
	}
}

func (s *Server) listAdd(c *conn) error {
	item, err := c.r.Item()
	if err != nil {
		return err
	}
	if _, err := s.ctl.Playlist().Add(item); err != nil {
		return err
	}
	s.bus.Broadcast(events.EvPlistAdd, item)
	return nil
}

func (s *Server) listDelete(c *conn) error {
	file, err := c.r.Str()
	if err != nil {
		return err
	}
	pos, err := s.ctl.Playlist().FindFname(file)
	if err != nil {
		return err
	}
	if err := s.ctl.Playlist().Delete(pos); err != nil {
		return err
	}
	s.bus.Broadcast(events.EvPlistDel, file)
	return nil
}

func (s *Server) queueAdd(c *conn) error {
	item, err := c.r.Item()
	if err != nil {
		return err
	}
	if _, err := s.ctl.Queue().Add(item); err != nil {
		return err
	}
	s.bus.Broadcast(events.EvQueueAdd, item)
	return nil
}

func (s *Server) queueDelete(c *conn) error {
	file, err := c.r.Str()
	if err != nil {
		return err
	}
	pos, err := s.ctl.Queue().FindFname(file)
	if err != nil {
		return err
	}
	if err := s.ctl.Queue().Delete(pos); err != nil {
		return err
	}
	s.bus.Broadcast(events.EvQueueDel, file)
	return nil
}

func (s *Server) listMove(c *conn, list *playlist.Playlist, evType events.Type) error {
	from, err := c.r.I32()
	if err != nil {
		return err
	}
	to, err := c.r.I32()
	if err != nil {
		return err
	}
	if err := list.Move(int(from), int(to)); err != nil {
		return err
	}
	s.bus.Broadcast(evType, events.MovePair{From: int(from), To: int(to)})
	return nil
}

func (c *conn) writePlistSnapshot(list *playlist.Playlist) error {
	items := list.Items()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.w.I32(int32(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := c.w.Item(it); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func (s *Server) sendPlist(c *conn) error {
	n, err := c.r.I32()
	if err != nil {
		return err
	}
	items := make([]*playlist.Item, 0, n)
	for i := int32(0); i < n; i++ {
		item, err := c.r.Item()
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	s.ctl.Playlist().Clear()
	for _, it := range items {
		if _, err := s.ctl.Playlist().Add(it); err != nil {
			return err
		}
	}
	s.bus.Broadcast(events.EvSendPlist, "")
	return nil
}

func (s *Server) getFileTags(c *conn) error {
	file, err := c.r.Str()
	if err != nil {
		return err
	}
	mask, err := c.r.I32()
	if err != nil {
		return err
	}
	fmask := playlist.FilledMask(mask)

	if tags, ok := s.tags.GetImmediate(file, fmask); ok {
		s.bus.Send(c.id, events.EvFileTags, protocol.FileTags{File: file, Tags: tags})
		return nil
	}
	s.tags.AddRequest(file, fmask, c.tagsID)
	return nil
}

func (s *Server) setOption(name string, val int32) error {
	switch name {
	case "Shuffle":
		s.ctl.Options.Shuffle = val != 0
	case "Repeat":
		s.ctl.Options.Repeat = val != 0
	case "AutoNext":
		s.ctl.Options.AutoNext = val != 0
	case "QueueNextSongReturn":
		s.ctl.Options.QueueNextSongReturn = val != 0
	case "ShowStreamErrors":
		s.ctl.Player().ShowStreamErrors = val != 0
	case "Precache":
		s.ctl.Player().PrecacheEnabled = val != 0
	default:
		return fmt.Errorf("server: unknown option %q", name)
	}
	s.bus.Broadcast(events.EvOptions, name)
	return nil
}

func (s *Server) getOption(name string) (int32, error) {
	switch name {
	case "Shuffle":
		return boolToI32(s.ctl.Options.Shuffle), nil
	case "Repeat":
		return boolToI32(s.ctl.Options.Repeat), nil
	case "AutoNext":
		return boolToI32(s.ctl.Options.AutoNext), nil
	case "QueueNextSongReturn":
		return boolToI32(s.ctl.Options.QueueNextSongReturn), nil
	case "ShowStreamErrors":
		return boolToI32(s.ctl.Player().ShowStreamErrors), nil
	case "Precache":
		return boolToI32(s.ctl.Player().PrecacheEnabled), nil
	default:
		return 0, fmt.Errorf("server: unknown option %q", name)
	}
}
