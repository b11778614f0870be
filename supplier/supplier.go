// Package supplier implements the content pipeline of the clip engine: an
// ordered chain of pull-based stages that produces the audio or MIDI material
// of one clip for a requested frame range. Stages compose linearly; each one
// translates the requested range, delegates to its inner supplier and
// post-processes the delivered material. Everything here runs in the
// real-time context, so no stage may allocate or block; scratch buffers are
// created up front when the chain is built.
package supplier

import (
	"math"

	"github.com/helgoboss/clipmatrix"
)

type (
	// Request asks for material covering the frame range
	// [Start, Start+Frames). Start is in the coordinates of the stage being
	// asked; the outermost coordinates are logical clip frames where frame 0
	// is the downbeat. Negative frames occur during count-in.
	Request struct {
		Start  int64
		Frames int
	}

	// Status reports whether the supplier can deliver more material after
	// this request.
	Status int

	Response struct {
		// Written is the number of frames of material delivered, counted
		// from the start of the request. It is less than the requested
		// frame count only when the material ended inside the block.
		Written int
		Status  Status
	}

	// Block receives the delivered material. Audio may be nil for MIDI-only
	// clips. Event frames are relative to the start of the request.
	Block struct {
		Audio  clipmatrix.AudioBuffer
		Events []clipmatrix.MidiEvent
	}

	// Supplier is one stage of the chain: deliver material for a frame
	// range and report through which frame material exists at all.
	Supplier interface {
		Supply(req Request, block *Block) Response
		// Available returns the exclusive upper bound of addressable
		// material frames, in this stage's coordinates. Unbounded stages
		// (e.g. an enabled looper) return math.MaxInt64.
		Available() int64
	}
)

const (
	// StatusContinue means more material can be pulled after this request.
	StatusContinue Status = iota
	// StatusEnded means the material is exhausted; pulling further ranges
	// yields nothing.
	StatusEnded
)

// Unbounded is the Available() value of stages without an end.
const Unbounded int64 = math.MaxInt64

// maxEvents bounds the MIDI events one block can carry. The capacity is
// reserved when a chain is built; events beyond it within a single block are
// dropped rather than allocating in the real-time context.
const maxEvents = 1024

// appendEvent adds an event to the block unless the block is at capacity.
func (b *Block) appendEvent(e clipmatrix.MidiEvent) {
	if len(b.Events) == cap(b.Events) {
		return
	}
	b.Events = append(b.Events, e)
}

func (b *Block) zeroAudio(from, to int) {
	if b.Audio == nil {
		return
	}
	for i := from; i < to && i < len(b.Audio); i++ {
		b.Audio[i] = [2]float32{}
	}
}
