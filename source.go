package clipmatrix

import "errors"

// Source is the raw media a clip plays: either decoded audio frames or an
// in-memory MIDI sequence. A Source is immutable once a clip references it
// for playback; edits such as an overdub commit build a new Source and swap
// it in atomically through the engine's command queue.
type Source struct {
	// SampleRate is the frame rate of the material. MIDI sequences use the
	// engine sample rate so that all frame arithmetic stays uniform.
	SampleRate int

	// FilePath references external audio material. Snapshots persist the
	// path only; the decoded payload is not part of the serializable state.
	FilePath string `yaml:",omitempty"`

	// Audio holds the decoded (or recorded) audio frames. Not serialized.
	Audio AudioBuffer `yaml:"-"`

	// Midi holds the MIDI material, if this is a MIDI source.
	Midi *MidiSequence `yaml:",omitempty"`
}

var ErrEmptySource = errors.New("source has neither audio nor MIDI material")

func (s *Source) IsMidi() bool {
	return s.Midi != nil
}

// FrameCount returns the natural length of the material in frames.
func (s *Source) FrameCount() int64 {
	if s.Midi != nil {
		return s.Midi.Length
	}
	return int64(len(s.Audio))
}

func (s *Source) Validate() error {
	if s.SampleRate < 1 {
		return errors.New("source sample rate must be positive")
	}
	if s.Midi == nil && len(s.Audio) == 0 && s.FilePath == "" {
		return ErrEmptySource
	}
	return nil
}

// Copy makes a deep copy of a Source.
func (s *Source) Copy() Source {
	ret := Source{SampleRate: s.SampleRate, FilePath: s.FilePath}
	if s.Audio != nil {
		ret.Audio = make(AudioBuffer, len(s.Audio))
		copy(ret.Audio, s.Audio)
	}
	if s.Midi != nil {
		m := s.Midi.Copy()
		ret.Midi = &m
	}
	return ret
}
