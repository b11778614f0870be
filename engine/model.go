package engine

import (
	"errors"
	"fmt"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/timing"
)

// maxRecordSeconds bounds open-ended recordings. The capture buffer is
// reserved up front so the real-time side never grows it.
const maxRecordSeconds = 120

// maxRecordEvents bounds a MIDI recording the same way.
const maxRecordEvents = 16384

var (
	ErrEngineBusy = errors.New("engine command queue is full")
	ErrSlotEmpty  = errors.New("slot is empty")
	ErrSlotBusy   = errors.New("slot is busy")
)

type (
	// Model is the control side of a running matrix. It owns the persistent
	// matrix data, validates and prepares every mutation (allocating chains
	// and capture buffers), and forwards plain commands to the engine through
	// the broker. All methods must be called from one goroutine; the
	// real-time side never touches the model.
	Model struct {
		broker *Broker
		matrix *clipmatrix.Matrix

		frame    int64
		bpm      float64
		hostLive bool
		peak     [2]float32
		rms      [2]float32
		statuses []SlotStatus

		// recording keeps what the model needs to turn a committed capture
		// back into a persistent clip.
		recording map[[2]int]pendingRecording

		// OnLog, when set, receives the engine's log entries during Update.
		OnLog func(LogEntry)
	}

	pendingRecording struct {
		settings clipmatrix.Clip
		overdub  bool
	}

	// RecordOptions selects how a recording behaves.
	RecordOptions struct {
		Midi bool
		// Overdub merges the capture into the existing MIDI clip instead of
		// replacing it.
		Overdub bool
		// PlayAfter makes the slot keep playing the fresh clip when the
		// recording ends.
		PlayAfter bool
	}
)

// New validates the matrix and builds a model/engine pair wired through a
// fresh broker. The model keeps its own deep copy of the matrix; the caller's
// value stays untouched.
func New(m *clipmatrix.Matrix) (*Model, *Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid matrix: %w", err)
	}
	broker := NewBroker()
	matrix := m.Copy()
	model := &Model{
		broker:    broker,
		matrix:    &matrix,
		bpm:       matrix.BPM,
		recording: make(map[[2]int]pendingRecording),
	}
	engine := NewEngine(broker, &matrix)
	return model, engine, nil
}

func (m *Model) Broker() *Broker { return m.broker }

// Matrix returns a deep copy of the current persistent state, suitable for
// saving.
func (m *Model) Matrix() clipmatrix.Matrix { return m.matrix.Copy() }

// Frame returns the last reported timeline position.
func (m *Model) Frame() int64 { return m.frame }

// BPM returns the last reported tempo.
func (m *Model) BPM() float64 { return m.bpm }

// HostLive reports whether the host transport drives the engine.
func (m *Model) HostLive() bool { return m.hostLive }

// Peak returns the per-channel peak level of the last reported block.
func (m *Model) Peak() [2]float32 { return m.peak }

// RMS returns the per-channel RMS level of the last reported block.
func (m *Model) RMS() [2]float32 { return m.rms }

// StatusAt returns the last reported state of the slot.
func (m *Model) StatusAt(col, row int) SlotStatus {
	for _, s := range m.statuses {
		if s.Column == col && s.Row == row {
			return s
		}
	}
	return SlotStatus{Column: col, Row: row, State: Empty}
}

func (m *Model) checkSlot(col, row int) error {
	if col < 0 || col >= len(m.matrix.Columns) {
		return fmt.Errorf("column %d out of range", col)
	}
	if row < 0 || row >= m.matrix.Rows {
		return fmt.Errorf("row %d out of range", row)
	}
	return nil
}

func (m *Model) send(cmd Command) error {
	if !TrySend(m.broker.ToEngine, cmd) {
		return ErrEngineBusy
	}
	return nil
}

// PlaySlot triggers the slot with its resolved start timing.
func (m *Model) PlaySlot(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	if m.matrix.Clip(col, row) == nil {
		return ErrSlotEmpty
	}
	return m.send(Command{Op: OpPlaySlot, Column: col, Row: row, StartTiming: m.matrix.StartTimingAt(col, row)})
}

// StopSlot triggers a stop with the slot's resolved stop timing.
func (m *Model) StopSlot(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	return m.send(Command{Op: OpStopSlot, Column: col, Row: row, StopTiming: m.matrix.StopTimingAt(col, row)})
}

// PauseSlot freezes the slot's playback position.
func (m *Model) PauseSlot(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	return m.send(Command{Op: OpPauseSlot, Column: col, Row: row})
}

// SeekSlot moves the playback position to the given frame within the clip.
func (m *Model) SeekSlot(col, row int, frame int64) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	if frame < 0 {
		frame = 0
	}
	return m.send(Command{Op: OpSeekSlot, Column: col, Row: row, Value: float64(frame)})
}

// PlayScene triggers every column's slot in the given row, except columns
// that opted out of scenes. The matrix-wide start timing applies.
func (m *Model) PlayScene(row int) error {
	if row < 0 || row >= m.matrix.Rows {
		return fmt.Errorf("row %d out of range", row)
	}
	return m.send(Command{Op: OpPlayScene, Row: row, StartTiming: m.matrix.StartTiming})
}

// StopScene stops every column's slot in the given row.
func (m *Model) StopScene(row int) error {
	if row < 0 || row >= m.matrix.Rows {
		return fmt.Errorf("row %d out of range", row)
	}
	return m.send(Command{Op: OpStopScene, Row: row, StopTiming: m.matrix.StopTiming})
}

// StopAll stops every slot with the matrix-wide stop timing.
func (m *Model) StopAll() error {
	return m.send(Command{Op: OpStopAll, StopTiming: m.matrix.StopTiming})
}

// Panic stops everything immediately and mutes hanging MIDI notes.
func (m *Model) Panic() error {
	return m.send(Command{Op: OpPanic})
}

// SetClip puts a clip into the slot, replacing what was there. The clip's
// chain is built here, in the control context; the engine defers the actual
// swap until the slot is silent.
func (m *Model) SetClip(col, row int, clip clipmatrix.Clip) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	if err := clip.Validate(); err != nil {
		return fmt.Errorf("invalid clip: %w", err)
	}
	stored := clip.Copy()
	rt := buildClip(&stored)
	if err := m.send(Command{Op: OpSetClip, Column: col, Row: row, Clip: rt}); err != nil {
		return err
	}
	m.matrix.Columns[col].Slots[row].Clips = []clipmatrix.Clip{stored}
	return nil
}

// ClearSlot empties the slot.
func (m *Model) ClearSlot(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	if err := m.send(Command{Op: OpClearSlot, Column: col, Row: row}); err != nil {
		return err
	}
	m.matrix.Columns[col].Slots[row].Clips = nil
	delete(m.recording, [2]int{col, row})
	return nil
}

// StartRecording arms the slot. The capture buffer and the chain that plays
// it back are allocated here; the engine only writes into them. A
// matrix-wide record length turns into an automatic stop.
func (m *Model) StartRecording(col, row int, opts RecordOptions) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	if st := m.StatusAt(col, row); st.State.IsRecordingOrScheduledToRecord() {
		return ErrSlotBusy
	}
	if opts.Overdub {
		return m.startOverdub(col, row)
	}
	sr := m.matrix.SampleRate
	rec := newRecorder(m.matrix.Columns[col].Monitoring, opts.Midi, sr, maxRecordSeconds*sr, maxRecordEvents, false, opts.PlayAfter)
	if !m.matrix.RecordLength.IsImmediate() {
		tempo, sig := timing.Tempo(m.bpm), m.matrix.TimeSig
		rec.stopAt = timing.GridFrames(m.matrix.RecordLength, tempo, sig, sr)
	}
	settings := clipmatrix.Clip{
		Source:   rec.source,
		Looped:   true,
		Volume:   1,
		TimeBase: clipmatrix.TimeBaseBeat,
		Tempo:    m.bpm,
	}
	pending := buildClip(&settings)
	m.recording[[2]int{col, row}] = pendingRecording{settings: settings}
	return m.send(Command{
		Op:          OpStartRecording,
		Column:      col,
		Row:         row,
		StartTiming: m.matrix.StartTimingAt(col, row),
		Recorder:    rec,
		Clip:        pending,
	})
}

// startOverdub records MIDI on top of a playing MIDI clip. Playback
// continues; the capture holds only the new events and is merged into the
// clip when it commits, covering one material cycle from the moment of the
// trigger.
func (m *Model) startOverdub(col, row int) error {
	clip := m.matrix.Clip(col, row)
	if clip == nil {
		return ErrSlotEmpty
	}
	if !clip.Source.IsMidi() {
		return errors.New("overdub needs a MIDI clip")
	}
	if m.StatusAt(col, row).State != Playing {
		return errors.New("overdub needs a playing slot")
	}
	sr := m.matrix.SampleRate
	rec := newRecorder(m.matrix.Columns[col].Monitoring, true, sr, 0, maxRecordEvents, true, true)
	m.recording[[2]int{col, row}] = pendingRecording{settings: clip.Copy(), overdub: true}
	return m.send(Command{
		Op:          OpStartRecording,
		Column:      col,
		Row:         row,
		StartTiming: m.matrix.StartTimingAt(col, row),
		Recorder:    rec,
	})
}

// StopRecording ends the recording with the slot's resolved stop timing.
func (m *Model) StopRecording(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	return m.send(Command{Op: OpStopRecording, Column: col, Row: row, StopTiming: m.matrix.StopTimingAt(col, row)})
}

// CancelRecording discards the capture and restores the previous clip.
func (m *Model) CancelRecording(col, row int) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	delete(m.recording, [2]int{col, row})
	return m.send(Command{Op: OpCancelRecording, Column: col, Row: row})
}

// SetClipVolume changes the clip's gain, taking effect within one block.
func (m *Model) SetClipVolume(col, row int, gain float32) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	clip := m.matrix.Clip(col, row)
	if clip == nil {
		return ErrSlotEmpty
	}
	if gain < 0 {
		gain = 0
	}
	if err := m.send(Command{Op: OpSetClipVolume, Column: col, Row: row, Gain: gain}); err != nil {
		return err
	}
	clip.Volume = gain
	return nil
}

// SetClipLooped toggles looping of the clip.
func (m *Model) SetClipLooped(col, row int, looped bool) error {
	if err := m.checkSlot(col, row); err != nil {
		return err
	}
	clip := m.matrix.Clip(col, row)
	if clip == nil {
		return ErrSlotEmpty
	}
	if err := m.send(Command{Op: OpSetClipLooped, Column: col, Row: row, Flag: looped}); err != nil {
		return err
	}
	clip.Looped = looped
	return nil
}

// SetColumnExclusive toggles the launcher behavior of the column.
func (m *Model) SetColumnExclusive(col int, exclusive bool) error {
	if col < 0 || col >= len(m.matrix.Columns) {
		return fmt.Errorf("column %d out of range", col)
	}
	if err := m.send(Command{Op: OpSetColumnExclusive, Column: col, Flag: exclusive}); err != nil {
		return err
	}
	b := exclusive
	m.matrix.Columns[col].Exclusive = &b
	return nil
}

// SetTempo changes the free-running tempo. A live host transport overrides
// it on the next block.
func (m *Model) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return errors.New("BPM should be > 0")
	}
	if err := m.send(Command{Op: OpSetTempo, Tempo: timing.Tempo(bpm)}); err != nil {
		return err
	}
	m.matrix.BPM = bpm
	m.bpm = bpm
	return nil
}

// SetTimeSig changes the time signature used for grid alignment.
func (m *Model) SetTimeSig(sig timing.TimeSig) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if err := m.send(Command{Op: OpSetTimeSig, TimeSig: sig}); err != nil {
		return err
	}
	m.matrix.TimeSig = sig
	return nil
}

// Update drains everything the engine reported since the last call: status
// snapshots, committed recordings and log entries. Call it regularly from
// the control goroutine, e.g. once per UI frame.
func (m *Model) Update() {
	for {
		select {
		case msg := <-m.broker.ToModel:
			m.handle(msg)
		default:
			m.broker.Log.Drain(func(e LogEntry) {
				if m.OnLog != nil {
					m.OnLog(e)
				}
			})
			return
		}
	}
}

func (m *Model) handle(msg MsgToModel) {
	if msg.HasStatus {
		m.frame = msg.Frame
		m.bpm = msg.BPM
		m.hostLive = msg.HostLive
		m.peak = msg.Peak
		m.rms = msg.RMS
		if msg.Statuses != nil {
			m.statuses = append(m.statuses[:0], (*msg.Statuses)...)
			m.broker.PutStatusBuffer(msg.Statuses)
		}
	}
	switch data := msg.Data.(type) {
	case RecordingFinished:
		m.finishRecording(data)
	}
}

// finishRecording mirrors a committed capture into the persistent matrix.
// For a plain recording the engine already plays the material and this is
// bookkeeping only; for an overdub the merged clip is swapped in here, with
// the engine carrying the playback position across the swap.
func (m *Model) finishRecording(data RecordingFinished) {
	key := [2]int{data.Column, data.Row}
	rec, ok := m.recording[key]
	if !ok {
		return
	}
	delete(m.recording, key)
	if rec.overdub {
		merged := rec.settings
		length := merged.Source.Midi.Length
		events := data.Source.Midi.Events
		if length > 0 {
			for i := range events {
				events[i].Frame = ((events[i].Frame % length) + length) % length
			}
		}
		merged.Source.Midi.Merge(events)
		if err := m.SetClip(data.Column, data.Row, merged); err != nil {
			return
		}
		return
	}
	settings := rec.settings
	settings.Source = data.Source
	settings.DownbeatFrames = data.DownbeatFrames
	m.matrix.Columns[data.Column].Slots[data.Row].Clips = []clipmatrix.Clip{settings}
}

// Close asks the engine goroutine to wind down and waits briefly for it.
func (m *Model) Close() {
	TrySend(m.broker.CloseEngine, struct{}{})
}
