package clipmatrix

import (
	"errors"
	"fmt"

	"github.com/helgoboss/clipmatrix/timing"
)

type (
	// TimingKind says when a requested start/stop actually takes effect.
	TimingKind int

	// Timing is a start or stop timing setting: either immediate, quantized
	// to a musical grid, or (stop only) deferred until the end of the
	// current clip cycle.
	Timing struct {
		Kind TimingKind
		Grid timing.Grid `yaml:",omitempty"`
	}

	// Section restricts playback non-destructively to a sub-range of the
	// source material. Length 0 means "until the natural end".
	Section struct {
		Start  int64 `yaml:",omitempty"`
		Length int64 `yaml:",omitempty"`
	}

	// TimeBase says whether clip material is stretched with the project
	// tempo (beat-relative) or plays at its recorded rate (time-relative).
	TimeBase int

	// Clip is a configured reference to a Source plus playback settings.
	// Timing settings are optional; a nil pointer inherits from the column,
	// which in turn inherits from the matrix.
	Clip struct {
		Name   string `yaml:",omitempty"`
		Source *Source

		// Looped makes the clip repeat forever; a one-shot clip plays its
		// material once and stops.
		Looped bool

		// Volume is a linear gain factor; 1.0 plays the material unchanged.
		Volume float32

		StartTiming *Timing `yaml:",omitempty"`
		StopTiming  *Timing `yaml:",omitempty"`

		Section  Section  `yaml:",omitempty"`
		TimeBase TimeBase `yaml:",omitempty"`

		// Tempo is the tempo the material was recorded at, in BPM. Only
		// meaningful for beat-relative clips; the engine stretches by
		// projectTempo/Tempo. 0 means "same as project", i.e. no stretch.
		Tempo float64 `yaml:",omitempty"`

		// DownbeatFrames is the length of the pickup material preceding the
		// downbeat, in source frames. The supplier chain shifts playback so
		// that this material sounds during the count-in phase.
		DownbeatFrames int64 `yaml:",omitempty"`
	}
)

const (
	// TimingImmediate takes effect on the next processing block.
	TimingImmediate TimingKind = iota
	// TimingQuantized takes effect on the next grid-aligned frame.
	TimingQuantized
	// TimingUntilEndOfClip lets the current cycle finish first. Only valid
	// as a stop timing; it is a policy consulted while playing, not a state
	// of its own.
	TimingUntilEndOfClip
)

func (k TimingKind) String() string {
	switch k {
	case TimingImmediate:
		return "immediate"
	case TimingQuantized:
		return "quantized"
	case TimingUntilEndOfClip:
		return "until-end-of-clip"
	}
	return "unknown"
}

func (t Timing) Validate(stop bool) error {
	switch t.Kind {
	case TimingImmediate:
		return nil
	case TimingQuantized:
		if t.Grid.IsImmediate() {
			return errors.New("quantized timing needs a non-immediate grid")
		}
		return t.Grid.Validate()
	case TimingUntilEndOfClip:
		if !stop {
			return errors.New("until-end-of-clip is only valid as a stop timing")
		}
		return nil
	}
	return fmt.Errorf("unknown timing kind %d", int(t.Kind))
}

const (
	// TimeBaseBeat stretches the material to follow the project tempo.
	TimeBaseBeat TimeBase = iota
	// TimeBaseTime plays the material at its recorded rate regardless of
	// tempo.
	TimeBaseTime
)

func (c *Clip) Validate() error {
	if c.Source == nil {
		return errors.New("clip has no source")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("clip source: %w", err)
	}
	if c.StartTiming != nil {
		if err := c.StartTiming.Validate(false); err != nil {
			return fmt.Errorf("clip start timing: %w", err)
		}
	}
	if c.StopTiming != nil {
		if err := c.StopTiming.Validate(true); err != nil {
			return fmt.Errorf("clip stop timing: %w", err)
		}
	}
	if c.Section.Start < 0 || c.Section.Length < 0 {
		return errors.New("clip section must not be negative")
	}
	if c.Volume < 0 {
		return errors.New("clip volume must not be negative")
	}
	return nil
}

// EffectiveLength returns the playable material length in frames, after the
// section restriction.
func (c *Clip) EffectiveLength() int64 {
	natural := c.Source.FrameCount() - c.Section.Start
	if natural < 0 {
		natural = 0
	}
	if c.Section.Length > 0 && c.Section.Length < natural {
		return c.Section.Length
	}
	return natural
}

// Copy makes a deep copy of a Clip.
func (c *Clip) Copy() Clip {
	ret := *c
	if c.Source != nil {
		src := c.Source.Copy()
		ret.Source = &src
	}
	if c.StartTiming != nil {
		t := *c.StartTiming
		ret.StartTiming = &t
	}
	if c.StopTiming != nil {
		t := *c.StopTiming
		ret.StopTiming = &t
	}
	return ret
}
