package engine

import (
	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/timing"
)

type (
	CommandOp int

	// Command is one control-side request to the engine. It is a plain
	// value; any memory a command needs (a new clip's chain, a recorder's
	// capture buffer) is allocated by the model before the command is
	// enqueued, so applying it in the real-time context never allocates.
	// Commands are applied in the order enqueued, all of them at the start
	// of the next processing block, before that block's scheduling pass; a
	// stop-then-play pair issued together is therefore never reordered.
	Command struct {
		Op CommandOp

		Column int
		Row    int

		// StartTiming/StopTiming carry the settings resolved by the model
		// (clip > column > matrix precedence); the engine resolves them to
		// trigger frames against the timeline, which only it knows
		// precisely.
		StartTiming clipmatrix.Timing
		StopTiming  clipmatrix.Timing

		Flag  bool
		Value float64
		Gain  float32

		Tempo   timing.Tempo
		TimeSig timing.TimeSig

		Clip     *rtClip
		Recorder *rtRecorder
	}
)

const (
	OpNone CommandOp = iota
	OpPlaySlot
	OpStopSlot
	OpPauseSlot
	OpSeekSlot
	OpPlayScene
	OpStopScene
	OpStopAll
	OpClearSlot
	OpSetClip
	OpStartRecording
	OpStopRecording
	OpCancelRecording
	OpSetClipVolume
	OpSetClipLooped
	OpSetColumnExclusive
	OpSetTempo
	OpSetTimeSig
	OpPanic
)
