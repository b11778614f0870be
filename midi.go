package clipmatrix

import (
	"sort"

	"gitlab.com/gomidi/midi/v2"
)

type (
	// MidiEvent is a single timestamped MIDI message inside a MIDI source.
	// Frame is relative to the start of the material; events retained from a
	// pickup beat keep positive frames, the clip's downbeat offset accounts
	// for the shift instead.
	MidiEvent struct {
		Frame int64
		Msg   midi.Message
	}

	// MidiSequence is an in-memory ordered sequence of timestamped MIDI
	// events, the MIDI counterpart of raw audio data. Length is the length of
	// the material in sample frames, which for a recorded clip is the
	// quantized recording duration, not the frame of the last event.
	MidiSequence struct {
		Events []MidiEvent
		Length int64
	}
)

// Copy makes a deep copy of a MidiSequence.
func (s *MidiSequence) Copy() MidiSequence {
	events := make([]MidiEvent, len(s.Events))
	for i, e := range s.Events {
		msg := make(midi.Message, len(e.Msg))
		copy(msg, e.Msg)
		events[i] = MidiEvent{Frame: e.Frame, Msg: msg}
	}
	return MidiSequence{Events: events, Length: s.Length}
}

// Merge merges the given events into the sequence, keeping the event order
// stable by frame. Used for committing a MIDI overdub; always called from the
// control context.
func (s *MidiSequence) Merge(events []MidiEvent) {
	s.Events = append(s.Events, events...)
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].Frame < s.Events[j].Frame
	})
}

// EventsIn returns the events with from <= Frame < to, assuming the events
// are sorted by frame. Returns a sub-slice, no copying.
func (s *MidiSequence) EventsIn(from, to int64) []MidiEvent {
	lo := sort.Search(len(s.Events), func(i int) bool { return s.Events[i].Frame >= from })
	hi := sort.Search(len(s.Events), func(i int) bool { return s.Events[i].Frame >= to })
	return s.Events[lo:hi]
}
