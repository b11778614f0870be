package clipmatrix_test

import (
	"reflect"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/timing"
)

func TestMatrixSaveLoad(t *testing.T) {
	m := clipmatrix.NewMatrix(2, 3)
	excl := false
	m.Columns[0].Name = "drums"
	m.Columns[0].Exclusive = &excl
	m.Columns[1].StartTiming = &clipmatrix.Timing{Kind: clipmatrix.TimingQuantized, Grid: timing.Grid{Num: 1, Den: 4}}
	m.Columns[0].Slots[1].Clips = []clipmatrix.Clip{{
		Name:   "beat",
		Looped: true,
		Volume: 0.8,
		Source: &clipmatrix.Source{
			SampleRate: 44100,
			Midi: &clipmatrix.MidiSequence{
				Events: []clipmatrix.MidiEvent{
					{Frame: 0, Msg: midi.NoteOn(0, 60, 100)},
					{Frame: 22050, Msg: midi.NoteOff(0, 60)},
				},
				Length: 88200,
			},
		},
		TimeBase: clipmatrix.TimeBaseBeat,
		Tempo:    120,
	}}
	m.Columns[1].Slots[0].Clips = []clipmatrix.Clip{{
		Name:       "pad",
		Volume:     1,
		Source:     &clipmatrix.Source{SampleRate: 44100, FilePath: "pad.wav"},
		StopTiming: &clipmatrix.Timing{Kind: clipmatrix.TimingUntilEndOfClip},
	}}
	data, err := m.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := clipmatrix.LoadMatrix(data)
	if err != nil {
		t.Fatalf("LoadMatrix failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, m) {
		t.Errorf("loaded matrix differs from saved\ngot:  %#v\nwant: %#v", loaded, m)
	}
}

func TestLoadMatrixRejectsInvalid(t *testing.T) {
	if _, err := clipmatrix.LoadMatrix([]byte("bpm: -10\nrows: 1\n")); err == nil {
		t.Errorf("expected an error for a matrix with negative BPM")
	}
	if _, err := clipmatrix.LoadMatrix([]byte("!!!")); err == nil {
		t.Errorf("expected an error for garbage input")
	}
}

func TestImportLegacyMatrix(t *testing.T) {
	data := []byte(`
bpm: 100
rows: 2
slots:
  - track: 0
    row: 1
    content: bass.wav
    volume: 0.5
    repeat: true
  - track: 2
    row: 0
    content: lead.wav
`)
	m, err := clipmatrix.ImportLegacyMatrix(data)
	if err != nil {
		t.Fatalf("ImportLegacyMatrix failed: %v", err)
	}
	if len(m.Columns) != 3 || m.Rows != 2 {
		t.Fatalf("got %dx%d matrix, want 3x2", len(m.Columns), m.Rows)
	}
	if m.BPM != 100 {
		t.Errorf("got BPM %v, want 100", m.BPM)
	}
	bass := m.Clip(0, 1)
	if bass == nil {
		t.Fatal("slot (0,1) is empty")
	}
	if bass.Name != "bass.wav" || !bass.Looped || bass.Volume != 0.5 || bass.Source.FilePath != "bass.wav" {
		t.Errorf("slot (0,1) lifted wrong: %+v", bass)
	}
	lead := m.Clip(2, 0)
	if lead == nil {
		t.Fatal("slot (2,0) is empty")
	}
	if lead.Volume != 1 || lead.Looped {
		t.Errorf("slot (2,0) defaults wrong: %+v", lead)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("lifted matrix does not validate: %v", err)
	}
}
