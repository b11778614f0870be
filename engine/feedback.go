package engine

// SlotStatus is one cell of the engine's periodic status snapshot, published
// to the model after every processing block through a pooled buffer. The
// snapshot is read-only data about the real-time state; nothing in it aliases
// engine-owned memory.
type SlotStatus struct {
	Column, Row int
	State       SlotState

	// Error marks a stop forced by a resource problem, e.g. an exhausted
	// capture buffer. It clears with the slot's next state change.
	Error bool

	// PosFrames is the playback or recording position in logical frames.
	// Negative during count-in; the integer countdown to the trigger.
	PosFrames int64

	// LengthFrames is the length of one material cycle, or the predefined
	// recording length while recording. 0 when unknown or open-ended.
	LengthFrames int64
}

// snapshotInto appends the status of every slot to the pooled buffer.
func (e *Engine) snapshotInto(buf *[]SlotStatus) {
	for _, col := range e.columns {
		for i := range col.slots {
			s := &col.slots[i]
			st := SlotStatus{Column: s.col, Row: s.row, State: s.state, Error: s.errored}
			switch {
			case s.recorder != nil:
				st.PosFrames = s.recorder.cursor
				st.LengthFrames = s.recorder.stopAt
			case s.clip != nil:
				st.PosFrames = s.clip.cursor
				st.LengthFrames = s.clip.chain.CycleLength()
			}
			if len(*buf) < cap(*buf) {
				*buf = append(*buf, st)
			}
		}
	}
}
