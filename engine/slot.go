package engine

import (
	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/supplier"
)

type (
	// rtClip is the real-time representation of one clip: its supplier chain,
	// a scratch block to pull into and the playback cursor. The chain and
	// block are allocated in the control context; everything the real-time
	// side does with an rtClip is allocation-free.
	rtClip struct {
		chain    *supplier.Chain
		block    supplier.Block
		settings clipmatrix.Clip

		// cursor is the next logical frame to pull. Negative during
		// count-in; frame 0 is the downbeat, i.e. the trigger frame.
		cursor int64

		// stopAtCycleEnd lets the clip finish its current material cycle and
		// then stop, instead of stopping at a grid frame.
		stopAtCycleEnd bool
	}

	// rtSlot is one cell of the real-time matrix. It owns the slot state
	// machine; all transitions happen on the real-time goroutine, either when
	// a command is applied at the start of a block or when a scheduled
	// trigger frame falls inside a block.
	rtSlot struct {
		col, row int

		state SlotState
		// prevState is where a backpedaled scheduled transition returns to.
		prevState      SlotState
		scheduledFrame int64

		clip     *rtClip
		recorder *rtRecorder

		// prevClip is the clip that was in the slot before a recording
		// started, restored when the recording is canceled.
		prevClip *rtClip
		// pendingClip plays the recorder's source; it is swapped in when the
		// recording commits.
		pendingClip *rtClip
		// swapClip is a clip replacement that arrived while the slot was
		// busy; retried every block until the slot is silent.
		swapClip *rtClip

		resume    bool // the scheduled start continues a paused cursor
		retrigger bool // the scheduled start restarts the playing clip
		pausing   bool // fading out towards Paused
		// errored marks a stop forced by a resource problem, e.g. a full
		// capture buffer; the next state change clears it.
		errored bool

		recordingDone bool
		doneDownbeat  int64
		// overdubSource carries a committed overdub capture to the model;
		// nil for plain recordings, whose source the swapped-in clip holds.
		overdubSource *clipmatrix.Source
	}

	// RecordingFinished travels in MsgToModel.Data when a recording commits.
	// The source it carries is the recorder's capture buffer; the real-time
	// side already plays it through the pending chain, the model mirrors it
	// into the persistent matrix.
	RecordingFinished struct {
		Column, Row    int
		Source         *clipmatrix.Source
		DownbeatFrames int64
		LengthFrames   int64
	}
)

// buildClip prepares the real-time representation of a clip. Control context
// only; this is where all chain scratch memory is allocated.
func buildClip(clip *clipmatrix.Clip) *rtClip {
	c := &rtClip{chain: supplier.NewChain(clip.Source), settings: *clip}
	c.chain.Configure(&c.settings)
	c.block = c.chain.NewBlock()
	return c
}

func (s *rtSlot) setState(state SlotState, frame int64, log *RingLog) {
	if state == s.state {
		return
	}
	s.errored = false
	s.state = state
	log.Push(LogEntry{Frame: frame, Code: LogStateChange, Col: int32(s.col), Row: int32(s.row), Arg: int64(state)})
}

// playRequested handles a play trigger resolved to the given timeline frame.
// now is the first frame of the upcoming block, so trigger <= now means an
// immediate start.
func (s *rtSlot) playRequested(now, trigger int64, log *RingLog) {
	switch s.state {
	case Empty:
		log.Push(LogEntry{Frame: now, Code: LogSlotError, Col: int32(s.col), Row: int32(s.row)})
	case Stopped:
		s.prevState = Stopped
		s.resume = false
		s.retrigger = false
		s.scheduledFrame = trigger
		s.clip.chain.Reset()
		// count-in runs at negative cursor positions; pickup material in
		// the clip sounds there, everything else is silence
		s.clip.cursor = now - trigger
		s.clip.stopAtCycleEnd = false
		s.setState(ScheduledForPlayStart, now, log)
	case Paused:
		s.prevState = Paused
		s.resume = true
		s.retrigger = false
		s.scheduledFrame = trigger
		s.setState(ScheduledForPlayStart, now, log)
	case Playing:
		s.prevState = Playing
		s.resume = false
		s.retrigger = true
		s.scheduledFrame = trigger
		s.setState(ScheduledForPlayStart, now, log)
	case ScheduledForPlayStart:
		// backpedal: a second press before the trigger reverts the slot to
		// where it was, as if the first press had not happened
		s.resume = false
		s.retrigger = false
		if s.prevState == Stopped {
			s.clip.cursor = 0
			s.clip.chain.Reset()
		}
		s.setState(s.prevState, now, log)
	case ScheduledForPlayStop:
		// cancel the pending stop
		s.clip.stopAtCycleEnd = false
		s.setState(Playing, now, log)
	case ScheduledForRecordStart:
		s.cancelRecording(now, log)
	case Recording:
		s.stopRecordRequested(now, trigger, log)
	case ScheduledForRecordStop:
	}
}

// stopRequested handles a stop trigger resolved to the given timeline frame.
// untilCycleEnd selects the stop that lets the current material cycle finish
// instead of cutting at a grid frame.
func (s *rtSlot) stopRequested(now, trigger int64, untilCycleEnd bool, log *RingLog) {
	switch s.state {
	case Empty, Stopped:
	case Paused:
		s.clip.cursor = 0
		s.clip.chain.Reset()
		s.setState(Stopped, now, log)
	case ScheduledForPlayStart:
		prev := s.prevState
		s.resume = false
		s.retrigger = false
		if prev == Playing {
			// the slot was retriggering; it keeps playing, so the stop
			// applies to the ongoing playback
			s.setState(Playing, now, log)
			s.stopRequested(now, trigger, untilCycleEnd, log)
			return
		}
		if prev == Stopped {
			s.clip.cursor = 0
			s.clip.chain.Reset()
		}
		s.setState(prev, now, log)
	case Playing:
		if untilCycleEnd {
			s.clip.stopAtCycleEnd = true
			s.scheduledFrame = 0 // recomputed every block from the cycle
			s.setState(ScheduledForPlayStop, now, log)
			return
		}
		s.scheduledFrame = trigger
		if trigger <= now {
			s.clip.chain.BeginFadeOut()
		}
		s.setState(ScheduledForPlayStop, now, log)
	case ScheduledForPlayStop:
		// a second stop makes it immediate
		s.clip.stopAtCycleEnd = false
		s.scheduledFrame = now
		s.clip.chain.BeginFadeOut()
	case ScheduledForRecordStart:
		s.cancelRecording(now, log)
	case Recording:
		s.stopRecordRequested(now, trigger, log)
	case ScheduledForRecordStop:
		// make the pending record stop immediate
		s.scheduledFrame = now
	}
}

// pauseRequested freezes playback, keeping the cursor for a later resume.
func (s *rtSlot) pauseRequested(now int64, log *RingLog) {
	switch s.state {
	case Playing:
		s.pausing = true
		s.clip.chain.BeginFadeOut()
	case ScheduledForPlayStart, ScheduledForPlayStop:
		// resolve to the state the trigger would leave behind, then pause
		if s.clip != nil && s.state == ScheduledForPlayStop {
			s.clip.stopAtCycleEnd = false
		}
		s.setState(Playing, now, log)
		s.pausing = true
		s.clip.chain.BeginFadeOut()
	}
}

// seekRequested moves the playback cursor to the given logical frame. The
// stretch stage re-anchors on the jump; a short fade-in hides the seam.
func (s *rtSlot) seekRequested(frame int64, log *RingLog) {
	if s.clip == nil {
		return
	}
	switch s.state {
	case Playing, Paused, ScheduledForPlayStop:
		s.clip.cursor = frame
		if s.state != Paused {
			s.clip.chain.BeginFadeIn()
		}
	}
}

// recordRequested arms the slot for recording. The recorder and the pending
// clip playing its capture buffer were allocated by the model.
func (s *rtSlot) recordRequested(now, trigger int64, rec *rtRecorder, pending *rtClip, log *RingLog) {
	switch s.state {
	case Empty, Stopped:
		s.prevState = s.state
		s.prevClip = s.clip
		s.clip = nil
		s.recorder = rec
		s.pendingClip = pending
		s.recorder.cursor = now - trigger
		s.scheduledFrame = trigger
		if trigger <= now {
			s.setState(Recording, now, log)
		} else {
			s.setState(ScheduledForRecordStart, now, log)
		}
	case Playing:
		if !rec.overdub || s.clip == nil {
			log.Push(LogEntry{Frame: now, Code: LogSlotError, Col: int32(s.col), Row: int32(s.row)})
			return
		}
		// overdub: playback continues, the capture runs alongside it for
		// one material cycle, aligned with the clip's own position
		s.prevState = Playing
		s.recorder = rec
		s.pendingClip = nil
		rec.pickupAllowed = false
		cycle := s.clip.chain.CycleLength()
		pos := s.clip.cursor
		if cycle > 0 && pos >= 0 {
			pos %= cycle
		}
		rec.cursor = pos - (trigger - now)
		if cycle > 0 {
			rec.stopAt = pos + cycle
		}
		s.scheduledFrame = trigger
		if trigger <= now {
			s.setState(Recording, now, log)
		} else {
			s.setState(ScheduledForRecordStart, now, log)
		}
	default:
		log.Push(LogEntry{Frame: now, Code: LogSlotError, Col: int32(s.col), Row: int32(s.row)})
	}
}

// stopRecordRequested schedules the end of an ongoing recording.
func (s *rtSlot) stopRecordRequested(now, trigger int64, log *RingLog) {
	switch s.state {
	case ScheduledForRecordStart:
		s.cancelRecording(now, log)
	case Recording:
		s.scheduledFrame = trigger
		if trigger <= now {
			s.scheduledFrame = now
		}
		s.setState(ScheduledForRecordStop, now, log)
	}
}

// cancelRecording discards the capture and restores the slot to what it was
// before the recording started.
func (s *rtSlot) cancelRecording(now int64, log *RingLog) {
	if s.recorder == nil {
		return
	}
	if s.recorder.overdub {
		// playback never stopped; just drop the capture
		s.recorder = nil
		log.Push(LogEntry{Frame: now, Code: LogRecordingDropped, Col: int32(s.col), Row: int32(s.row)})
		s.setState(Playing, now, log)
		return
	}
	s.recorder = nil
	s.pendingClip = nil
	s.clip = s.prevClip
	s.prevClip = nil
	if s.clip != nil {
		s.clip.cursor = 0
		s.clip.chain.Reset()
	}
	log.Push(LogEntry{Frame: now, Code: LogRecordingDropped, Col: int32(s.col), Row: int32(s.row)})
	s.setState(s.prevState, now, log)
}

// clearRequested empties the slot. Any playback or recording is dropped on
// the spot; for MIDI the engine's note tracking mutes hanging notes.
func (s *rtSlot) clearRequested(now int64, log *RingLog) {
	s.recorder = nil
	s.pendingClip = nil
	s.prevClip = nil
	s.swapClip = nil
	s.clip = nil
	s.pausing = false
	s.setState(Empty, now, log)
}

// setClip replaces the slot's clip. A playing slot swaps seamlessly with the
// position carried over (this is how an overdub merge reaches the player);
// otherwise the swap only succeeds while the slot is silent and the engine
// defers it.
func (s *rtSlot) setClip(clip *rtClip, now int64, log *RingLog) bool {
	switch s.state {
	case Empty, Stopped:
		s.clip = clip
		s.setState(Stopped, now, log)
		return true
	case Playing, ScheduledForPlayStop:
		clip.cursor = 0
		if s.clip != nil {
			clip.cursor = s.clip.cursor
			clip.stopAtCycleEnd = s.clip.stopAtCycleEnd
		}
		clip.chain.Reset()
		clip.chain.BeginFadeIn()
		s.clip = clip
		return true
	}
	return false
}

// process renders the slot's contribution to one block.
func (s *rtSlot) process(env *blockEnv) {
	if s.swapClip != nil && s.setClip(s.swapClip, env.start, env.log) {
		s.swapClip = nil
	}
	switch s.state {
	case ScheduledForRecordStart, Recording, ScheduledForRecordStop:
		s.processRecord(env)
	case ScheduledForPlayStart, Playing, ScheduledForPlayStop:
		s.processPlay(env)
	}
}

func (s *rtSlot) processPlay(env *blockEnv) {
	c := s.clip
	if c.settings.TimeBase == clipmatrix.TimeBaseBeat && c.settings.Tempo > 0 {
		c.chain.SetTempoFactor(env.bpm / c.settings.Tempo)
	}
	blockEnd := env.start + int64(env.frames)
	switch s.state {
	case ScheduledForPlayStart:
		if s.resume || s.retrigger {
			off := env.frames
			if s.scheduledFrame < blockEnd {
				off = int(s.scheduledFrame - env.start)
				if off < 0 {
					off = 0
				}
			}
			if s.retrigger {
				// keep playing the old position up to the trigger
				s.renderPlay(env, 0, off)
			}
			if off < env.frames {
				c.cursor = 0
				if s.resume {
					c.cursor = s.resumeCursor(c)
				}
				c.chain.Reset()
				c.chain.BeginFadeIn()
				s.resume = false
				s.retrigger = false
				s.setState(Playing, s.scheduledFrame, env.log)
				s.renderPlay(env, off, env.frames)
			}
			return
		}
		// fresh start: the chain turns the negative cursor into count-in
		// silence or pickup material, so no block splitting is needed
		s.renderPlay(env, 0, env.frames)
		if c.cursor >= 0 {
			s.setState(Playing, s.scheduledFrame, env.log)
		}
	case Playing:
		ended := s.renderPlay(env, 0, env.frames)
		if s.pausing && ended {
			s.pausing = false
			s.setState(Paused, blockEnd, env.log)
			return
		}
		if ended {
			s.stopPlayback(blockEnd, env.log)
		}
	case ScheduledForPlayStop:
		trigger := s.scheduledFrame
		if c.stopAtCycleEnd {
			trigger = env.start + c.chain.FramesUntilCycleEnd()
		}
		off := env.frames
		if trigger < blockEnd {
			off = int(trigger - env.start)
			if off < 0 {
				off = 0
			}
		}
		ended := s.renderPlay(env, 0, off)
		if off < env.frames && !ended {
			c.chain.BeginFadeOut()
			ended = s.renderPlay(env, off, env.frames)
		}
		if ended {
			s.stopPlayback(blockEnd, env.log)
		}
	}
}

// resumeCursor returns where a resume from pause restarts. The cursor was
// left a fade length past the audible pause point; backing up keeps resume
// roughly where the listener stopped hearing the clip.
func (s *rtSlot) resumeCursor(c *rtClip) int64 {
	pos := c.cursor - int64(supplier.FadeFrames)
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (s *rtSlot) stopPlayback(frame int64, log *RingLog) {
	c := s.clip
	c.cursor = 0
	c.stopAtCycleEnd = false
	c.chain.Reset()
	s.setState(Stopped, frame, log)
}

// renderPlay pulls chain material for block frames [from, to) and mixes it
// into the column output. Reports whether the chain ended inside the range.
func (s *rtSlot) renderPlay(env *blockEnv, from, to int) bool {
	c := s.clip
	n := to - from
	if n <= 0 {
		return false
	}
	c.block.Events = c.block.Events[:0]
	resp := c.chain.Supply(supplier.Request{Start: c.cursor, Frames: n}, &c.block)
	if c.block.Audio != nil && env.out != nil {
		for i := 0; i < resp.Written; i++ {
			env.out[from+i][0] += c.block.Audio[i][0]
			env.out[from+i][1] += c.block.Audio[i][1]
		}
	}
	for _, e := range c.block.Events {
		env.appendEvent(clipmatrix.MidiEvent{Frame: e.Frame + int64(from), Msg: e.Msg})
	}
	c.cursor += int64(resp.Written)
	return resp.Status == supplier.StatusEnded
}

func (s *rtSlot) processRecord(env *blockEnv) {
	rec := s.recorder
	if rec.overdub && s.clip != nil {
		// the clip keeps playing underneath the overdub
		c := s.clip
		if c.settings.TimeBase == clipmatrix.TimeBaseBeat && c.settings.Tempo > 0 {
			c.chain.SetTempoFactor(env.bpm / c.settings.Tempo)
		}
		s.renderPlay(env, 0, env.frames)
	}
	blockEnd := env.start + int64(env.frames)
	limit := env.frames
	stopping := false
	if s.state == ScheduledForRecordStop && s.scheduledFrame < blockEnd {
		limit = int(s.scheduledFrame - env.start)
		if limit < 0 {
			limit = 0
		}
		stopping = true
	}
	// a predefined recording length stops the capture by itself
	if rec.stopAt > 0 && rec.cursor+int64(limit) >= rec.stopAt {
		limit = int(rec.stopAt - rec.cursor)
		if limit < 0 {
			limit = 0
		}
		stopping = true
	}
	// capture before advancing so event offsets count from the block start
	for _, e := range env.midiIn {
		if int(e.Frame) < limit {
			rec.captureMidi(int(e.Frame), e.Msg)
		}
	}
	if env.in != nil && limit > 0 {
		rec.writeAudio(env.in[:limit])
	} else {
		rec.advance(limit)
	}
	if s.state == ScheduledForRecordStart && rec.cursor >= 0 {
		s.setState(Recording, s.scheduledFrame, env.log)
	}
	if rec.full {
		env.log.Push(LogEntry{Frame: blockEnd, Code: LogSlotError, Col: int32(s.col), Row: int32(s.row)})
		stopping = true
	}
	if !stopping {
		return
	}
	s.commitRecording(env, env.frames-limit)
}

// commitRecording finalizes the capture and swaps the pending clip in. When
// the recording plays afterwards, the remainder of the block already renders
// the fresh clip from its downbeat.
func (s *rtSlot) commitRecording(env *blockEnv, tailFrames int) {
	rec := s.recorder
	downbeat := rec.finalize()
	s.recordingDone = true
	s.doneDownbeat = downbeat

	if rec.overdub {
		// playback never stopped; hand the capture to the model, which
		// merges it and swaps the clip in seamlessly
		s.overdubSource = rec.source
		s.recorder = nil
		frame := env.start + int64(env.frames-tailFrames)
		env.log.Push(LogEntry{Frame: frame, Code: LogRecordingFinished, Col: int32(s.col), Row: int32(s.row)})
		s.setState(Playing, frame, env.log)
		return
	}

	clip := s.pendingClip
	clip.settings.DownbeatFrames = downbeat
	clip.chain.Configure(&clip.settings)
	s.clip = clip
	s.recorder = nil
	s.pendingClip = nil
	s.prevClip = nil

	frame := env.start + int64(env.frames-tailFrames)
	env.log.Push(LogEntry{Frame: frame, Code: LogRecordingFinished, Col: int32(s.col), Row: int32(s.row), Arg: clip.settings.Source.FrameCount()})
	if rec.playAfter && !rec.full {
		clip.cursor = 0
		s.setState(Playing, frame, env.log)
		s.renderPlay(env, env.frames-tailFrames, env.frames)
		return
	}
	clip.cursor = 0
	s.setState(Stopped, frame, env.log)
	if rec.full {
		s.errored = true
	}
}
