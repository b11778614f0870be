package timing

type (
	// Timeline supplies the current position in sample frames together with
	// the tempo and time signature in effect at that position. Two
	// implementations exist: one bound to the host transport and a
	// free-running one used while the host transport is stopped. Both share
	// one tempo reference through AutoTimeline.
	Timeline interface {
		// Pos returns the current position in sample frames. Frame zero is
		// the start of bar one; positions can be negative during count-in.
		Pos() int64
		// TempoAt returns the tempo and time signature in effect at the
		// given frame. With a piecewise-constant tempo, all frames at or
		// after the last tempo change report the current tempo.
		TempoAt(frame int64) (Tempo, TimeSig)
		// Advance moves the position forward by the given number of frames.
		// Called exactly once per processing block, by the real-time context
		// only.
		Advance(frames int)
	}

	// FreeTimeline is the free-running fallback timeline. It simply counts
	// frames from wherever it was last anchored.
	FreeTimeline struct {
		frame      int64
		tempo      Tempo
		sig        TimeSig
		sampleRate int
	}

	// HostTimeline follows the host transport. The host position is pushed in
	// once per block from the process callback; Advance is a no-op
	// prediction in between pushes so that the position still moves if the
	// host reports positions only sporadically.
	HostTimeline struct {
		frame      int64
		tempo      Tempo
		sig        TimeSig
		sampleRate int
		playing    bool
	}

	// AutoTimeline selects whichever timeline is authoritative at a given
	// moment: the host timeline while the host transport plays, the
	// free-running one otherwise. The switch-over carries the last known
	// position and tempo to the other side, so the musical position never
	// jumps.
	AutoTimeline struct {
		host     HostTimeline
		free     FreeTimeline
		hostLive bool
	}
)

func NewFreeTimeline(tempo Tempo, sig TimeSig, sampleRate int) *FreeTimeline {
	return &FreeTimeline{tempo: tempo, sig: sig, sampleRate: sampleRate}
}

func (t *FreeTimeline) Pos() int64 { return t.frame }

func (t *FreeTimeline) TempoAt(frame int64) (Tempo, TimeSig) { return t.tempo, t.sig }

func (t *FreeTimeline) Advance(frames int) { t.frame += int64(frames) }

func (t *FreeTimeline) SetTempo(tempo Tempo) { t.tempo = tempo }

func (t *FreeTimeline) SetTimeSig(sig TimeSig) { t.sig = sig }

// Anchor moves the timeline to the given frame without playing the frames in
// between, e.g. when taking over from the host timeline.
func (t *FreeTimeline) Anchor(frame int64) { t.frame = frame }

func NewAutoTimeline(tempo Tempo, sig TimeSig, sampleRate int) *AutoTimeline {
	return &AutoTimeline{
		host: HostTimeline{tempo: tempo, sig: sig, sampleRate: sampleRate},
		free: FreeTimeline{tempo: tempo, sig: sig, sampleRate: sampleRate},
	}
}

func (t *AutoTimeline) Pos() int64 {
	if t.hostLive {
		return t.host.frame
	}
	return t.free.frame
}

func (t *AutoTimeline) TempoAt(frame int64) (Tempo, TimeSig) {
	if t.hostLive {
		return t.host.tempo, t.host.sig
	}
	return t.free.tempo, t.free.sig
}

func (t *AutoTimeline) Advance(frames int) {
	if t.hostLive {
		t.host.frame += int64(frames)
	} else {
		t.free.frame += int64(frames)
	}
}

// HostTransportInfo is what the host reports at the start of each processing
// block. Ok is false when the host reports nothing (e.g. standalone use).
type HostTransportInfo struct {
	Ok      bool
	Playing bool
	Frame   int64
	BPM     float64
}

// UpdateFromHost feeds the host transport state for the current block and
// resolves which timeline is authoritative. When the host transport stops,
// the free-running timeline is anchored to the last host position so the
// musical position continues without a jump; when it starts, the host
// position wins.
func (t *AutoTimeline) UpdateFromHost(info HostTransportInfo) {
	if info.Ok && info.BPM > 0 {
		t.host.tempo = Tempo(info.BPM)
		t.free.tempo = Tempo(info.BPM)
	}
	hostPlaying := info.Ok && info.Playing
	if hostPlaying {
		t.host.frame = info.Frame
		t.host.playing = true
		t.hostLive = true
		return
	}
	if t.hostLive {
		// host just stopped; carry over position and keep rolling freely
		t.free.frame = t.host.frame
		t.hostLive = false
	}
	t.host.playing = false
}

// HostIsAuthoritative reports whether the host timeline currently drives the
// engine. Used by the scheduler to react to transport changes.
func (t *AutoTimeline) HostIsAuthoritative() bool { return t.hostLive }

func (t *AutoTimeline) SetTempo(tempo Tempo) {
	t.host.tempo = tempo
	t.free.tempo = tempo
}

func (t *AutoTimeline) SetTimeSig(sig TimeSig) {
	t.host.sig = sig
	t.free.sig = sig
}

func (t *AutoTimeline) SampleRate() int { return t.free.sampleRate }

// NextAlignedFrame quantizes the given frame to the grid using the tempo in
// effect at that frame.
func (t *AutoTimeline) NextAlignedFrame(frame int64, g Grid) int64 {
	tempo, sig := t.TempoAt(frame)
	return NextAlignedFrame(frame, g, tempo, sig, t.free.sampleRate)
}
