package engine

import (
	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/supplier"
)

type (
	// rtColumn is one column of the real-time matrix: a vertical strip of
	// slots that mixes into its own buffer before the engine sums the
	// columns. It carries the column settings that influence scheduling
	// (exclusivity, scene participation) and input routing.
	rtColumn struct {
		index         int
		exclusive     bool
		ignoresScenes bool
		input         clipmatrix.InputSelector
		stopTiming    *clipmatrix.Timing

		slots []rtSlot
		out   clipmatrix.AudioBuffer
	}

	// blockEnv is the per-column, per-block processing environment. It is
	// filled in by the engine and handed down to the slots; events appended
	// here carry block-relative frames and end up on the MIDI output.
	blockEnv struct {
		start  int64
		frames int
		bpm    float64

		out    clipmatrix.AudioBuffer
		in     clipmatrix.AudioBuffer
		midiIn []clipmatrix.MidiEvent

		events *[]clipmatrix.MidiEvent
		log    *RingLog
	}
)

func (e *blockEnv) appendEvent(ev clipmatrix.MidiEvent) {
	if len(*e.events) == cap(*e.events) {
		return
	}
	*e.events = append(*e.events, ev)
}

// newRTColumn builds the real-time side of one column. Control context only.
func newRTColumn(index, rows int, col *clipmatrix.Column) *rtColumn {
	c := &rtColumn{
		index:         index,
		exclusive:     col.ExclusiveOrDefault(),
		ignoresScenes: col.IgnoresScenes,
		input:         col.Monitoring,
		slots:         make([]rtSlot, rows),
		out:           make(clipmatrix.AudioBuffer, supplier.MaxBlockFrames),
	}
	if col.StopTiming != nil {
		t := *col.StopTiming
		c.stopTiming = &t
	}
	for row := range c.slots {
		c.slots[row] = rtSlot{col: index, row: row}
	}
	return c
}

// stopOthers schedules a stop on every sounding slot except the given row.
// Exclusive columns call this when a slot starts, with the newcomer's
// trigger frame, so the handover happens on the same grid boundary.
func (c *rtColumn) stopOthers(row int, now, trigger int64, log *RingLog) {
	for i := range c.slots {
		if i == row {
			continue
		}
		s := &c.slots[i]
		if s.state.IsPlayingOrScheduledToPlay() || s.state == ScheduledForPlayStop {
			s.stopRequested(now, trigger, false, log)
		}
	}
}

// anyRecording reports whether a slot of this column captures input right
// now, which is what input monitoring keys off.
func (c *rtColumn) anyRecording() bool {
	for i := range c.slots {
		if c.slots[i].state.IsRecordingOrScheduledToRecord() {
			return true
		}
	}
	return false
}

// process renders one block of the column into its own buffer.
func (c *rtColumn) process(env *blockEnv) {
	for i := 0; i < env.frames; i++ {
		env.out[i] = [2]float32{}
	}
	for i := range c.slots {
		c.slots[i].process(env)
	}
	// input monitoring: let the player hear what the recording captures
	if env.in != nil && c.anyRecording() {
		for i := 0; i < env.frames; i++ {
			env.out[i][0] += env.in[i][0]
			env.out[i][1] += env.in[i][1]
		}
	}
}
