// Package timing provides the tempo, musical grid and timeline primitives of
// the clip engine. All position arithmetic is done in integer sample frames;
// musical positions (bars, beats) are derived from frames via the current
// tempo, never stored as primary values, so that long sessions cannot
// accumulate floating-point drift.
package timing

import (
	"errors"
	"fmt"
	"math"
)

type (
	// Tempo is the playback tempo in beats per minute. VST hosts report tempi
	// as floats, so we keep the full precision here.
	Tempo float64

	// TimeSig is a musical time signature: Num beats of 1/Den notes per bar,
	// e.g. 4/4 or 6/8.
	TimeSig struct {
		Num int
		Den int
	}

	// Grid is a quantization raster, expressed as a rational number of bars:
	// 1/1 is one bar, 3/8 is three eighths of a bar, 4/1 is four bars. The
	// zero value means "immediate", i.e. no alignment at all.
	Grid struct {
		Num int `yaml:",omitempty"`
		Den int `yaml:",omitempty"`
	}
)

var ErrInvalidGrid = errors.New("grid numerator and denominator must be positive")

func (g Grid) IsImmediate() bool {
	return g.Num == 0
}

func (g Grid) Validate() error {
	if g.IsImmediate() {
		return nil
	}
	if g.Num < 0 || g.Den < 1 {
		return ErrInvalidGrid
	}
	return nil
}

func (g Grid) String() string {
	if g.IsImmediate() {
		return "immediate"
	}
	return fmt.Sprintf("%d/%d", g.Num, g.Den)
}

func (s TimeSig) Validate() error {
	if s.Num < 1 || s.Den < 1 {
		return errors.New("time signature must have positive numerator and denominator")
	}
	return nil
}

// BeatsPerBar returns the bar length in quarter-note beats, e.g. 4 for 4/4
// and 3 for 6/8.
func (s TimeSig) BeatsPerBar() float64 {
	return float64(s.Num) * 4 / float64(s.Den)
}

// FramesPerBeat returns the length of one quarter-note beat in sample frames,
// rounded to the nearest integer. The rounding happens exactly once, here, so
// that every caller sees the same frame count for the same tempo.
func FramesPerBeat(tempo Tempo, sampleRate int) int64 {
	return int64(math.Round(float64(sampleRate) * 60 / float64(tempo)))
}

// FramesPerBar returns the length of one bar in sample frames.
func FramesPerBar(tempo Tempo, sig TimeSig, sampleRate int) int64 {
	return int64(math.Round(float64(sampleRate) * 60 / float64(tempo) * sig.BeatsPerBar()))
}

// GridFrames returns the length of one grid cell in sample frames, or 0 for an
// immediate grid.
func GridFrames(g Grid, tempo Tempo, sig TimeSig, sampleRate int) int64 {
	if g.IsImmediate() {
		return 0
	}
	bar := float64(sampleRate) * 60 / float64(tempo) * sig.BeatsPerBar()
	return int64(math.Round(bar * float64(g.Num) / float64(g.Den)))
}

// NextAlignedFrame returns the smallest frame >= frame that lies on the given
// grid, counting the grid from frame zero of the timeline. A frame that
// already lies exactly on the grid is returned unchanged; this is what makes
// count-in positions at arbitrary negative offsets from a downbeat
// representable. An immediate grid aligns nothing and returns frame as is.
// Pure function of its inputs.
func NextAlignedFrame(frame int64, g Grid, tempo Tempo, sig TimeSig, sampleRate int) int64 {
	cell := GridFrames(g, tempo, sig, sampleRate)
	if cell <= 0 {
		return frame
	}
	rem := frame % cell
	if rem == 0 {
		return frame
	}
	if rem < 0 {
		// negative positions round towards zero in Go; correct to floor
		return frame - rem
	}
	return frame + cell - rem
}
