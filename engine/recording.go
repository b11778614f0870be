package engine

import (
	"github.com/helgoboss/clipmatrix"
	"gitlab.com/gomidi/midi/v2"
)

// rtRecorder captures incoming audio or MIDI into a source under
// construction. The capture buffers are allocated by the model when the
// recording is requested; the real-time side only writes into them. The
// recorder counts frames relative to the nominal (grid-aligned) start, so
// the count-in phase runs at negative positions: audio before the start is
// discarded, MIDI before the start is retained as pickup material and later
// folded into the clip's downbeat offset.
type rtRecorder struct {
	input  clipmatrix.InputSelector
	isMidi bool

	// source is the source under construction. Its Audio/Midi buffers have
	// their full capacity reserved up front; finalize trims them to size.
	source *clipmatrix.Source

	// cursor is the next capture position relative to the nominal start.
	cursor int64

	// stopAt, when > 0, is the predefined recording length in frames; the
	// recording stops itself at that cursor without an explicit command.
	stopAt int64

	// earliest is the most negative event frame seen, i.e. the pickup
	// length. 0 when no pickup material arrived.
	earliest int64

	overdub       bool
	playAfter     bool
	full          bool // capture buffer exhausted; slot goes to error-stopped
	pickupAllowed bool // retain MIDI arriving before the nominal start
}

// newRecorder is called by the model (control context). capacityFrames
// bounds the audio capture; capacityEvents bounds the MIDI capture.
func newRecorder(input clipmatrix.InputSelector, isMidi bool, sampleRate int, capacityFrames int, capacityEvents int, overdub, playAfter bool) *rtRecorder {
	source := &clipmatrix.Source{SampleRate: sampleRate}
	if isMidi {
		source.Midi = &clipmatrix.MidiSequence{Events: make([]clipmatrix.MidiEvent, 0, capacityEvents)}
	} else {
		source.Audio = make(clipmatrix.AudioBuffer, 0, capacityFrames)
	}
	return &rtRecorder{
		input:         input,
		isMidi:        isMidi,
		source:        source,
		overdub:       overdub,
		playAfter:     playAfter,
		pickupAllowed: isMidi,
	}
}

// writeAudio captures one block worth of input. Frames before the nominal
// start are dropped; the rest is appended within the reserved capacity.
func (r *rtRecorder) writeAudio(in clipmatrix.AudioBuffer) {
	if r.isMidi || r.full {
		r.cursor += int64(len(in))
		return
	}
	for i := range in {
		if r.cursor+int64(i) < 0 {
			continue
		}
		if len(r.source.Audio) == cap(r.source.Audio) {
			r.full = true
			break
		}
		r.source.Audio = append(r.source.Audio, in[i])
	}
	r.cursor += int64(len(in))
}

// advance moves the cursor when no input block applies, e.g. for MIDI
// recordings or an audio recording whose input is momentarily unavailable.
func (r *rtRecorder) advance(frames int) {
	r.cursor += int64(frames)
}

// captureMidi records one event arriving at the given offset inside the
// current block. Events before the nominal start are retained when pickup
// material is allowed, extending the downbeat offset backwards instead of
// being discarded.
func (r *rtRecorder) captureMidi(offset int, msg midi.Message) {
	if !r.isMidi || r.full {
		return
	}
	frame := r.cursor + int64(offset)
	if frame < 0 && !r.pickupAllowed {
		return
	}
	events := &r.source.Midi.Events
	if len(*events) == cap(*events) {
		r.full = true
		return
	}
	if frame < r.earliest {
		r.earliest = frame
	}
	*events = append(*events, clipmatrix.MidiEvent{Frame: frame, Msg: msg})
}

// finalize closes the capture at the current cursor and shapes the source:
// MIDI pickup events are shifted to non-negative frames and their extent
// returned as the downbeat offset. Called in the real-time context; it only
// trims and rewrites what was already captured.
func (r *rtRecorder) finalize() (downbeat int64) {
	if r.cursor < 0 {
		r.cursor = 0
	}
	if r.isMidi {
		downbeat = -r.earliest
		events := r.source.Midi.Events
		for i := range events {
			events[i].Frame += downbeat
		}
		r.source.Midi.Length = r.cursor + downbeat
		return downbeat
	}
	r.source.Midi = nil
	return 0
}
