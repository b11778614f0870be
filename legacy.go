package clipmatrix

import (
	"fmt"

	yamlv2 "gopkg.in/yaml.v2"

	"github.com/helgoboss/clipmatrix/timing"
)

// The first generation of the engine stored a matrix as a flat list of slot
// descriptors instead of nested columns. Files in that format are still
// around, so we keep a reader for them. Writing always uses the current
// snapshot format.

type (
	legacyMatrix struct {
		BPM   float64      `yaml:"bpm"`
		Rows  int          `yaml:"rows"`
		Slots []legacySlot `yaml:"slots"`
	}

	legacySlot struct {
		Track   int     `yaml:"track"`
		Row     int     `yaml:"row"`
		Content string  `yaml:"content"`
		Volume  float64 `yaml:"volume"`
		Repeat  bool    `yaml:"repeat"`
	}
)

// ImportLegacyMatrix reads a first-generation flat matrix file and lifts it
// into the current data model. Unknown tracks/rows grow the matrix as needed.
func ImportLegacyMatrix(data []byte) (*Matrix, error) {
	var legacy legacyMatrix
	if err := yamlv2.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing legacy matrix failed: %w", err)
	}
	if legacy.BPM <= 0 {
		return nil, fmt.Errorf("legacy matrix has invalid bpm %v", legacy.BPM)
	}
	columns := 0
	rows := legacy.Rows
	for _, s := range legacy.Slots {
		if s.Track < 0 || s.Row < 0 {
			return nil, fmt.Errorf("legacy slot has negative coordinate (%d,%d)", s.Track, s.Row)
		}
		if s.Track+1 > columns {
			columns = s.Track + 1
		}
		if s.Row+1 > rows {
			rows = s.Row + 1
		}
	}
	m := NewMatrix(columns, rows)
	m.BPM = legacy.BPM
	for _, s := range legacy.Slots {
		volume := float32(s.Volume)
		if volume == 0 {
			volume = 1
		}
		clip := Clip{
			Name:   s.Content,
			Looped: s.Repeat,
			Volume: volume,
			Source: &Source{
				SampleRate: m.SampleRate,
				FilePath:   s.Content,
			},
		}
		// the old engine always launched on the next bar
		clip.StartTiming = &Timing{Kind: TimingQuantized, Grid: timing.Grid{Num: 1, Den: 1}}
		m.Columns[s.Track].Slots[s.Row].Clips = append(m.Columns[s.Track].Slots[s.Row].Clips, clip)
	}
	return m, nil
}
