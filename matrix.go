package clipmatrix

import (
	"errors"
	"fmt"

	"github.com/helgoboss/clipmatrix/timing"
)

type (
	// Matrix is the top-level container of Columns x Rows -> Slots plus the
	// settings shared by all of them. A Matrix value itself is plain data;
	// the engine package owns the runtime that plays it. Multiple
	// independent matrices can coexist in one process, so nothing in here is
	// global.
	Matrix struct {
		// BPM and TimeSig are the tempo defaults used while no host
		// transport dictates them.
		BPM     float64
		TimeSig timing.TimeSig

		SampleRate int

		// Rows is the number of scenes, i.e. the slot count of each column.
		Rows int

		// StartTiming and StopTiming are the matrix-wide defaults; columns
		// and clips may override them (clip wins over column wins over
		// matrix).
		StartTiming Timing
		StopTiming  Timing

		// RecordLength, when non-immediate, stops recordings automatically
		// after this quantized duration.
		RecordLength timing.Grid `yaml:",omitempty"`

		Columns []Column
	}

	// Column is a vertical group of Slots sharing an output destination.
	Column struct {
		Name string `yaml:",omitempty"`

		// Exclusive makes the column stop its playing slot when another one
		// starts, the usual launcher behavior. nil inherits the matrix-wide
		// default of true.
		Exclusive *bool `yaml:",omitempty"`

		// IgnoresScenes opts the column out of scene playback.
		IgnoresScenes bool `yaml:",omitempty"`

		// Monitoring selects what the column's recordings capture.
		Monitoring InputSelector `yaml:",omitempty"`

		StartTiming *Timing `yaml:",omitempty"`
		StopTiming  *Timing `yaml:",omitempty"`

		Slots []Slot
	}

	// Slot is a fixed grid position holding zero or more clips. It has no
	// settings of its own; settings live on Clip, Column and Matrix.
	Slot struct {
		Clips []Clip `yaml:",omitempty"`
	}

	// InputSelector says where recorded material comes from.
	InputSelector int
)

const (
	// InputTrack records the column track's input signal.
	InputTrack InputSelector = iota
	// InputTrackOutput records the track output, post FX.
	InputTrackOutput
	// InputPlugin records the signal arriving at the plugin itself.
	InputPlugin
)

// NewMatrix returns a matrix with the given dimensions and the usual
// defaults: 1-bar quantized starts, 4/4, exclusive columns.
func NewMatrix(columns, rows int) *Matrix {
	m := &Matrix{
		BPM:         120,
		TimeSig:     timing.TimeSig{Num: 4, Den: 4},
		SampleRate:  44100,
		Rows:        rows,
		StartTiming: Timing{Kind: TimingQuantized, Grid: timing.Grid{Num: 1, Den: 1}},
		StopTiming:  Timing{Kind: TimingQuantized, Grid: timing.Grid{Num: 1, Den: 1}},
		Columns:     make([]Column, columns),
	}
	for i := range m.Columns {
		m.Columns[i].Slots = make([]Slot, rows)
	}
	return m
}

// Exclusive resolves the column's exclusivity with the matrix-wide default of
// true.
func (c *Column) ExclusiveOrDefault() bool {
	if c.Exclusive == nil {
		return true
	}
	return *c.Exclusive
}

// StartTimingAt resolves the start timing for the clip at (column, row) with
// the precedence clip > column > matrix.
func (m *Matrix) StartTimingAt(column, row int) Timing {
	col := &m.Columns[column]
	if clip := m.Clip(column, row); clip != nil && clip.StartTiming != nil {
		return *clip.StartTiming
	}
	if col.StartTiming != nil {
		return *col.StartTiming
	}
	return m.StartTiming
}

// StopTimingAt resolves the stop timing for the clip at (column, row) with
// the precedence clip > column > matrix.
func (m *Matrix) StopTimingAt(column, row int) Timing {
	col := &m.Columns[column]
	if clip := m.Clip(column, row); clip != nil && clip.StopTiming != nil {
		return *clip.StopTiming
	}
	if col.StopTiming != nil {
		return *col.StopTiming
	}
	return m.StopTiming
}

// Clip returns the first clip of the slot at (column, row), or nil if the
// slot is empty or out of range.
func (m *Matrix) Clip(column, row int) *Clip {
	if column < 0 || column >= len(m.Columns) {
		return nil
	}
	col := &m.Columns[column]
	if row < 0 || row >= len(col.Slots) || len(col.Slots[row].Clips) == 0 {
		return nil
	}
	return &col.Slots[row].Clips[0]
}

func (m *Matrix) Validate() error {
	if m.BPM <= 0 {
		return errors.New("BPM should be > 0")
	}
	if m.SampleRate < 1 {
		return errors.New("sample rate must be positive")
	}
	if err := m.TimeSig.Validate(); err != nil {
		return err
	}
	if err := m.StartTiming.Validate(false); err != nil {
		return fmt.Errorf("matrix start timing: %w", err)
	}
	if err := m.StopTiming.Validate(true); err != nil {
		return fmt.Errorf("matrix stop timing: %w", err)
	}
	if err := m.RecordLength.Validate(); err != nil {
		return fmt.Errorf("matrix record length: %w", err)
	}
	for i := range m.Columns {
		col := &m.Columns[i]
		if len(col.Slots) != m.Rows {
			return fmt.Errorf("column %d has %d slots, matrix has %d rows", i, len(col.Slots), m.Rows)
		}
		if col.StartTiming != nil {
			if err := col.StartTiming.Validate(false); err != nil {
				return fmt.Errorf("column %d start timing: %w", i, err)
			}
		}
		if col.StopTiming != nil {
			if err := col.StopTiming.Validate(true); err != nil {
				return fmt.Errorf("column %d stop timing: %w", i, err)
			}
		}
		for j := range col.Slots {
			for k := range col.Slots[j].Clips {
				if err := col.Slots[j].Clips[k].Validate(); err != nil {
					return fmt.Errorf("slot (%d,%d) clip %d: %w", i, j, k, err)
				}
			}
		}
	}
	return nil
}

// Copy makes a deep copy of a Matrix.
func (m *Matrix) Copy() Matrix {
	ret := *m
	ret.Columns = make([]Column, len(m.Columns))
	for i, c := range m.Columns {
		ret.Columns[i] = c.Copy()
	}
	return ret
}

// Copy makes a deep copy of a Column.
func (c *Column) Copy() Column {
	ret := *c
	if c.Exclusive != nil {
		b := *c.Exclusive
		ret.Exclusive = &b
	}
	if c.StartTiming != nil {
		t := *c.StartTiming
		ret.StartTiming = &t
	}
	if c.StopTiming != nil {
		t := *c.StopTiming
		ret.StopTiming = &t
	}
	ret.Slots = make([]Slot, len(c.Slots))
	for i, s := range c.Slots {
		clips := make([]Clip, len(s.Clips))
		for j := range s.Clips {
			clips[j] = s.Clips[j].Copy()
		}
		ret.Slots[i] = Slot{Clips: clips}
	}
	return ret
}
