package timing_test

import (
	"testing"

	"github.com/helgoboss/clipmatrix/timing"
)

func TestNextAlignedFrame(t *testing.T) {
	tempo := timing.Tempo(120)
	sig := timing.TimeSig{Num: 4, Den: 4}
	sr := 44100
	bar := timing.FramesPerBar(tempo, sig, sr)
	g := timing.Grid{Num: 1, Den: 1}
	cases := []struct {
		name        string
		frame, want int64
	}{
		{"zero is aligned", 0, 0},
		{"just after zero", 1, bar},
		{"boundary returns itself", bar, bar},
		{"one before boundary", bar - 1, bar},
		{"negative count-in", -1, 0},
		{"negative boundary returns itself", -bar, -bar},
		{"negative rounds up", -bar - 1, -bar},
	}
	for _, c := range cases {
		if got := timing.NextAlignedFrame(c.frame, g, tempo, sig, sr); got != c.want {
			t.Errorf("%s: NextAlignedFrame(%d) = %d, want %d", c.name, c.frame, got, c.want)
		}
	}
}

func TestNextAlignedFrameImmediate(t *testing.T) {
	got := timing.NextAlignedFrame(1234, timing.Grid{}, 120, timing.TimeSig{Num: 4, Den: 4}, 44100)
	if got != 1234 {
		t.Errorf("an immediate grid should not align, got %d", got)
	}
}

func TestGridFrames(t *testing.T) {
	tempo := timing.Tempo(120)
	sig := timing.TimeSig{Num: 4, Den: 4}
	sr := 44100
	bar := timing.FramesPerBar(tempo, sig, sr)
	if got := timing.GridFrames(timing.Grid{Num: 1, Den: 1}, tempo, sig, sr); got != bar {
		t.Errorf("one bar grid = %d, want %d", got, bar)
	}
	if got := timing.GridFrames(timing.Grid{Num: 1, Den: 4}, tempo, sig, sr); got != bar/4 {
		t.Errorf("quarter bar grid = %d, want %d", got, bar/4)
	}
	if got := timing.GridFrames(timing.Grid{Num: 4, Den: 1}, tempo, sig, sr); got != 4*bar {
		t.Errorf("four bar grid = %d, want %d", got, 4*bar)
	}
	if got := timing.GridFrames(timing.Grid{}, tempo, sig, sr); got != 0 {
		t.Errorf("immediate grid = %d, want 0", got)
	}
}

func TestBeatsPerBar(t *testing.T) {
	if got := (timing.TimeSig{Num: 4, Den: 4}).BeatsPerBar(); got != 4 {
		t.Errorf("4/4 has %v beats per bar, want 4", got)
	}
	if got := (timing.TimeSig{Num: 6, Den: 8}).BeatsPerBar(); got != 3 {
		t.Errorf("6/8 has %v beats per bar, want 3", got)
	}
}

func TestAutoTimelineFollowsHost(t *testing.T) {
	tl := timing.NewAutoTimeline(120, timing.TimeSig{Num: 4, Den: 4}, 44100)
	tl.UpdateFromHost(timing.HostTransportInfo{Ok: true, Playing: true, Frame: 1000, BPM: 100})
	if !tl.HostIsAuthoritative() {
		t.Fatal("host should be authoritative while playing")
	}
	if tl.Pos() != 1000 {
		t.Errorf("Pos() = %d, want 1000", tl.Pos())
	}
	tempo, _ := tl.TempoAt(tl.Pos())
	if tempo != 100 {
		t.Errorf("TempoAt = %v, want 100", tempo)
	}
}

func TestAutoTimelineCarriesPositionOnHostStop(t *testing.T) {
	tl := timing.NewAutoTimeline(120, timing.TimeSig{Num: 4, Den: 4}, 44100)
	tl.UpdateFromHost(timing.HostTransportInfo{Ok: true, Playing: true, Frame: 1000, BPM: 100})
	tl.Advance(512)
	tl.UpdateFromHost(timing.HostTransportInfo{Ok: true, Playing: false})
	if tl.HostIsAuthoritative() {
		t.Fatal("host should no longer be authoritative after stopping")
	}
	if tl.Pos() != 1512 {
		t.Errorf("Pos() = %d, want 1512 after hand-over", tl.Pos())
	}
	tl.Advance(100)
	if tl.Pos() != 1612 {
		t.Errorf("Pos() = %d, want 1612 after free-running advance", tl.Pos())
	}
	tempo, _ := tl.TempoAt(tl.Pos())
	if tempo != 100 {
		t.Errorf("free timeline should keep the host tempo, got %v", tempo)
	}
}

func TestAutoTimelineFreeByDefault(t *testing.T) {
	tl := timing.NewAutoTimeline(120, timing.TimeSig{Num: 4, Den: 4}, 44100)
	tl.UpdateFromHost(timing.HostTransportInfo{})
	tl.Advance(256)
	if tl.HostIsAuthoritative() {
		t.Fatal("no host report should leave the free timeline in charge")
	}
	if tl.Pos() != 256 {
		t.Errorf("Pos() = %d, want 256", tl.Pos())
	}
}
