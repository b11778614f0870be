package engine

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/supplier"
	"github.com/helgoboss/clipmatrix/timing"
)

type (
	// Engine is the real-time side of the matrix. Process is called once per
	// host audio block from the audio callback; everything the engine does
	// in there is allocation-free and lock-free. All control happens through
	// commands read from the broker at the start of each block.
	Engine struct {
		broker   *Broker
		timeline *timing.AutoTimeline
		columns  []*rtColumn
		meter    *meter

		// events stages the block's MIDI output; midiScratch rebase the
		// incoming events for sub-chunks of oversized host blocks.
		events      []clipmatrix.MidiEvent
		midiScratch []clipmatrix.MidiEvent

		panicPending bool
		allNotesOff  clipmatrix.MidiEvent
	}

	// ProcessContext is what the host hands the engine for one processing
	// run: transport state, input audio for recording columns and the MIDI
	// input stream. Event frames are relative to the block start.
	ProcessContext interface {
		HostTransport() timing.HostTransportInfo
		InputFor(sel clipmatrix.InputSelector, column int) clipmatrix.AudioBuffer
		MidiIn() []clipmatrix.MidiEvent
		SendMidi(ev clipmatrix.MidiEvent)
	}

	// NullProcessContext is a ProcessContext reporting no host, no input and
	// discarding MIDI output. Standalone playback and tests use it.
	NullProcessContext struct{}
)

func (NullProcessContext) HostTransport() timing.HostTransportInfo { return timing.HostTransportInfo{} }
func (NullProcessContext) InputFor(sel clipmatrix.InputSelector, column int) clipmatrix.AudioBuffer {
	return nil
}
func (NullProcessContext) MidiIn() []clipmatrix.MidiEvent { return nil }
func (NullProcessContext) SendMidi(ev clipmatrix.MidiEvent) {}

// NewEngine builds the real-time representation of the matrix. Control
// context; this is where all per-slot memory is allocated. The engine takes
// its own deep view of the matrix content, the caller keeps the original.
func NewEngine(broker *Broker, m *clipmatrix.Matrix) *Engine {
	e := &Engine{
		broker:      broker,
		timeline:    timing.NewAutoTimeline(timing.Tempo(m.BPM), m.TimeSig, m.SampleRate),
		meter:       newMeter(),
		events:      make([]clipmatrix.MidiEvent, 0, 1024),
		midiScratch: make([]clipmatrix.MidiEvent, 0, 1024),
		allNotesOff: clipmatrix.MidiEvent{Msg: midi.ControlChange(0, 123, 0)},
	}
	e.columns = make([]*rtColumn, len(m.Columns))
	for i := range m.Columns {
		e.columns[i] = newRTColumn(i, m.Rows, &m.Columns[i])
		for row := range e.columns[i].slots {
			if clip := m.Clip(i, row); clip != nil {
				e.columns[i].slots[row].clip = buildClip(clip)
				e.columns[i].slots[row].state = Stopped
			}
		}
	}
	return e
}

// Timeline exposes the engine's timeline for position queries from the same
// goroutine (tests, standalone player loop).
func (e *Engine) Timeline() *timing.AutoTimeline { return e.timeline }

// Process renders one host block into out. Commands queued since the last
// call are applied first, in order, so a stop-then-play pair issued together
// is never reordered; then the block is rendered, split into engine-sized
// chunks when the host block is larger than MaxBlockFrames.
func (e *Engine) Process(out clipmatrix.AudioBuffer, ctx ProcessContext) {
	now := e.timeline.Pos()
commands:
	for {
		select {
		case cmd := <-e.broker.ToEngine:
			e.apply(cmd, now)
		default:
			break commands
		}
	}
	wasLive := e.timeline.HostIsAuthoritative()
	e.timeline.UpdateFromHost(ctx.HostTransport())
	if wasLive && !e.timeline.HostIsAuthoritative() {
		// host transport stopped; nothing should keep sounding
		e.stopAll(e.timeline.Pos(), clipmatrix.Timing{}, true)
	}
	midiIn := ctx.MidiIn()
	offset := 0
	for offset < len(out) {
		n := len(out) - offset
		if n > supplier.MaxBlockFrames {
			n = supplier.MaxBlockFrames
		}
		e.processChunk(out[offset:offset+n], ctx, midiIn, offset)
		offset += n
	}
	e.finishBlock(ctx)
}

func (e *Engine) processChunk(out clipmatrix.AudioBuffer, ctx ProcessContext, midiIn []clipmatrix.MidiEvent, chunkOffset int) {
	start := e.timeline.Pos()
	tempo, _ := e.timeline.TempoAt(start)
	n := len(out)
	e.events = e.events[:0]
	e.midiScratch = e.midiScratch[:0]
	for _, ev := range midiIn {
		f := ev.Frame - int64(chunkOffset)
		if f >= 0 && f < int64(n) && len(e.midiScratch) < cap(e.midiScratch) {
			e.midiScratch = append(e.midiScratch, clipmatrix.MidiEvent{Frame: f, Msg: ev.Msg})
		}
	}
	env := blockEnv{
		start:  start,
		frames: n,
		bpm:    float64(tempo),
		midiIn: e.midiScratch,
		events: &e.events,
		log:    e.broker.Log,
	}
	if e.panicPending {
		env.appendEvent(e.allNotesOff)
		e.panicPending = false
	}
	for i := range out {
		out[i] = [2]float32{}
	}
	for _, col := range e.columns {
		env.out = col.out[:n]
		in := ctx.InputFor(col.input, col.index)
		if len(in) >= chunkOffset+n {
			env.in = in[chunkOffset : chunkOffset+n]
		} else {
			env.in = nil
		}
		col.process(&env)
		for i := 0; i < n; i++ {
			out[i][0] += col.out[i][0]
			out[i][1] += col.out[i][1]
		}
	}
	e.meter.update(out)
	e.timeline.Advance(n)
	for _, ev := range e.events {
		ev.Frame += int64(chunkOffset)
		ctx.SendMidi(ev)
	}
}

// finishBlock reports what happened during the block: committed recordings
// and a fresh status snapshot, all through non-blocking sends.
func (e *Engine) finishBlock(ctx ProcessContext) {
	for _, col := range e.columns {
		for i := range col.slots {
			s := &col.slots[i]
			if !s.recordingDone {
				continue
			}
			s.recordingDone = false
			source := s.overdubSource
			s.overdubSource = nil
			if source == nil {
				if s.clip == nil {
					continue
				}
				source = s.clip.settings.Source
			}
			TrySend(e.broker.ToModel, MsgToModel{Data: RecordingFinished{
				Column:         s.col,
				Row:            s.row,
				Source:         source,
				DownbeatFrames: s.doneDownbeat,
				LengthFrames:   source.FrameCount(),
			}})
		}
	}
	buf := e.broker.GetStatusBuffer()
	e.snapshotInto(buf)
	tempo, _ := e.timeline.TempoAt(e.timeline.Pos())
	msg := MsgToModel{
		HasStatus: true,
		Frame:     e.timeline.Pos(),
		BPM:       float64(tempo),
		HostLive:  e.timeline.HostIsAuthoritative(),
		Peak:      e.meter.peak,
		RMS:       [2]float32{e.meter.rms(0), e.meter.rms(1)},
		Statuses:  buf,
	}
	if !TrySend(e.broker.ToModel, msg) {
		e.broker.PutStatusBuffer(buf)
	}
}

// resolveTrigger turns a timing setting into an absolute timeline frame.
func (e *Engine) resolveTrigger(t clipmatrix.Timing, now int64) int64 {
	if t.Kind == clipmatrix.TimingQuantized {
		return e.timeline.NextAlignedFrame(now, t.Grid)
	}
	return now
}

func (e *Engine) slotAt(col, row int) *rtSlot {
	if col < 0 || col >= len(e.columns) {
		return nil
	}
	c := e.columns[col]
	if row < 0 || row >= len(c.slots) {
		return nil
	}
	return &c.slots[row]
}

func (e *Engine) apply(cmd Command, now int64) {
	log := e.broker.Log
	log.Push(LogEntry{Frame: now, Code: LogCommand, Col: int32(cmd.Column), Row: int32(cmd.Row), Arg: int64(cmd.Op)})
	switch cmd.Op {
	case OpPlaySlot:
		e.playSlot(cmd.Column, cmd.Row, cmd.StartTiming, now)
	case OpStopSlot:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			trigger := e.resolveTrigger(cmd.StopTiming, now)
			s.stopRequested(now, trigger, cmd.StopTiming.Kind == clipmatrix.TimingUntilEndOfClip, log)
		}
	case OpPauseSlot:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			s.pauseRequested(now, log)
		}
	case OpSeekSlot:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			s.seekRequested(int64(cmd.Value), log)
		}
	case OpPlayScene:
		for col := range e.columns {
			if e.columns[col].ignoresScenes {
				continue
			}
			if s := e.slotAt(col, cmd.Row); s != nil && s.state != Empty {
				e.playSlot(col, cmd.Row, cmd.StartTiming, now)
			}
		}
	case OpStopScene:
		for col := range e.columns {
			if e.columns[col].ignoresScenes {
				continue
			}
			if s := e.slotAt(col, cmd.Row); s != nil {
				e.stopSlotResolved(e.columns[col], s, cmd.StopTiming, now)
			}
		}
	case OpStopAll:
		e.stopAll(now, cmd.StopTiming, false)
	case OpClearSlot:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			s.clearRequested(now, log)
			e.panicPending = true
		}
	case OpSetClip:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			if !s.setClip(cmd.Clip, now, log) {
				s.swapClip = cmd.Clip
				log.Push(LogEntry{Frame: now, Code: LogSwapDeferred, Col: int32(cmd.Column), Row: int32(cmd.Row)})
			}
		}
	case OpStartRecording:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			trigger := e.resolveTrigger(cmd.StartTiming, now)
			before := s.state
			s.recordRequested(now, trigger, cmd.Recorder, cmd.Clip, log)
			if s.state.IsRecordingOrScheduledToRecord() && before != s.state && e.columns[cmd.Column].exclusive {
				e.columns[cmd.Column].stopOthers(cmd.Row, now, trigger, log)
			}
		}
	case OpStopRecording:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			s.stopRecordRequested(now, e.resolveTrigger(cmd.StopTiming, now), log)
		}
	case OpCancelRecording:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil {
			s.cancelRecording(now, log)
		}
	case OpSetClipVolume:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil && s.clip != nil {
			s.clip.settings.Volume = cmd.Gain
			s.clip.chain.SetVolume(cmd.Gain)
		}
	case OpSetClipLooped:
		if s := e.slotAt(cmd.Column, cmd.Row); s != nil && s.clip != nil {
			s.clip.settings.Looped = cmd.Flag
			s.clip.chain.SetLooped(cmd.Flag)
		}
	case OpSetColumnExclusive:
		if cmd.Column >= 0 && cmd.Column < len(e.columns) {
			e.columns[cmd.Column].exclusive = cmd.Flag
		}
	case OpSetTempo:
		e.timeline.SetTempo(cmd.Tempo)
	case OpSetTimeSig:
		e.timeline.SetTimeSig(cmd.TimeSig)
	case OpPanic:
		e.stopAll(now, clipmatrix.Timing{}, true)
		e.panicPending = true
	}
}

func (e *Engine) playSlot(col, row int, t clipmatrix.Timing, now int64) {
	s := e.slotAt(col, row)
	if s == nil {
		return
	}
	trigger := e.resolveTrigger(t, now)
	before := s.state
	s.playRequested(now, trigger, e.broker.Log)
	started := s.state == ScheduledForPlayStart && before != ScheduledForPlayStart
	if started && e.columns[col].exclusive {
		e.columns[col].stopOthers(row, now, trigger, e.broker.Log)
	}
}

// stopSlotResolved stops one slot with its own stop timing: the clip's
// setting wins over the column's, which wins over the given matrix-wide
// fallback. Matrix-wide stops go through here so that a clip configured to
// run until its cycle end keeps that behavior.
func (e *Engine) stopSlotResolved(col *rtColumn, s *rtSlot, fallback clipmatrix.Timing, now int64) {
	t := fallback
	if col.stopTiming != nil {
		t = *col.stopTiming
	}
	if s.clip != nil && s.clip.settings.StopTiming != nil {
		t = *s.clip.settings.StopTiming
	}
	s.stopRequested(now, e.resolveTrigger(t, now), t.Kind == clipmatrix.TimingUntilEndOfClip, e.broker.Log)
}

// stopAll stops every slot. With immediate set, scheduled starts revert and
// playing slots fade out right away; recordings are committed where they
// run and backpedaled where they are still scheduled. Otherwise each slot
// resolves its own stop timing against the given matrix-wide fallback.
func (e *Engine) stopAll(now int64, fallback clipmatrix.Timing, immediate bool) {
	for _, col := range e.columns {
		for i := range col.slots {
			if immediate {
				col.slots[i].stopRequested(now, now, false, e.broker.Log)
				continue
			}
			e.stopSlotResolved(col, &col.slots[i], fallback, now)
		}
	}
}
