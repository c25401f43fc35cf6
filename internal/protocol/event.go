package protocol

import (
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/playlist"
)

// EventCode is the i32 value an events.Type is written as on the wire.
// Kept as an explicit mapping (rather than casting events.Type directly)
// so the wire numbering stays stable even if internal iota ordering ever
// changes.
type EventCode int32

var eventWireCode = map[events.Type]EventCode{
	events.EvState:       0,
	events.EvCTime:       1,
	events.EvBitrate:     2,
	events.EvAvgBitrate:  3,
	events.EvRate:        4,
	events.EvChannels:    5,
	events.EvTags:        6,
	events.EvAudioStart:  7,
	events.EvAudioStop:   8,
	events.EvPlistAdd:    9,
	events.EvPlistDel:    10,
	events.EvPlistMove:   11,
	events.EvPlistClear:  12,
	events.EvQueueAdd:    13,
	events.EvQueueDel:    14,
	events.EvQueueMove:   15,
	events.EvQueueClear:  16,
	events.EvStatusMsg:   17,
	events.EvOptions:     18,
	events.EvMixerChange: 19,
	events.EvSrvError:    20,
	events.EvSendPlist:   21,
	events.EvExit:        22,
	events.EvBusy:        23,
	events.EvPong:        24,
	events.EvFileTags:    25,
	events.EvData:        26,
}

// WireCodeFor returns the numeric event code for t.
func WireCodeFor(t events.Type) EventCode {
	return eventWireCode[t]
}

// FileTags is the EvFileTags payload: the result of a get_file_tags
// request, delivered asynchronously once the tags cache resolves it.
type FileTags struct {
	File string
	Tags *playlist.Tags
}

// WriteEvent encodes one event's wire code and payload. The payload shape
// is chosen per event type; events that carry no payload write only the
// code.
func WriteEvent(w *Writer, ev events.Event) error {
	if err := w.I32(int32(WireCodeFor(ev.Type))); err != nil {
		return err
	}

	switch ev.Type {
	case events.EvState, events.EvSrvError, events.EvStatusMsg,
		events.EvPlistDel, events.EvQueueDel, events.EvSendPlist:
		s, _ := ev.Data.(string)
		return w.Str(s)

	case events.EvCTime, events.EvBitrate, events.EvAvgBitrate,
		events.EvRate, events.EvChannels, events.EvMixerChange:
		v, _ := ev.Data.(int)
		return w.I32(int32(v))

	case events.EvTags:
		t, _ := ev.Data.(*playlist.Tags)
		return w.Tags(t)

	case events.EvPlistAdd, events.EvQueueAdd:
		it, _ := ev.Data.(*playlist.Item)
		return w.Item(it)

	case events.EvPlistMove, events.EvQueueMove:
		mp, _ := ev.Data.(events.MovePair)
		if err := w.I32(int32(mp.From)); err != nil {
			return err
		}
		return w.I32(int32(mp.To))

	case events.EvFileTags:
		ft, _ := ev.Data.(FileTags)
		if err := w.Str(ft.File); err != nil {
			return err
		}
		return w.Tags(ft.Tags)

	default:
		return nil
	}
}
