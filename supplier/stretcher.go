package supplier

import (
	"math"

	"github.com/helgoboss/clipmatrix"
)

// MaxBlockFrames is the largest processing block a chain supports. Scratch
// buffers are sized for it up front so that Supply never allocates.
const MaxBlockFrames = 8192

// maxTempoFactor bounds how much faster than recorded a clip may play; it
// determines the scratch buffer headroom of the stretch stage.
const maxTempoFactor = 4.0

// stretchSupplier adjusts the playback rate of the inner material: one
// output frame consumes factor inner frames. It serves both tempo adjustment
// of beat-relative clips and play-rate changes. The factor is set once per
// processing block by the engine, not per sample. Audio is resampled by
// linear interpolation; MIDI event positions are scaled.
//
// The stage tracks the inner read position itself, carrying the fractional
// part across blocks. Sequential requests resume where the previous one
// ended; a request that jumps (seek) re-anchors the inner position at
// req.Start * factor.
type stretchSupplier struct {
	supplier Supplier
	enabled  bool
	factor   float64

	srcPos  int64   // inner frame where the next block starts reading
	frac    float64 // fractional part of the inner position
	nextOut int64   // expected Start of the next sequential request

	scratch clipmatrix.AudioBuffer
	sub     Block
}

func newStretchSupplier(supplier Supplier) *stretchSupplier {
	return &stretchSupplier{
		supplier: supplier,
		factor:   1,
		scratch:  make(clipmatrix.AudioBuffer, int(MaxBlockFrames*maxTempoFactor)+2),
	}
}

func (s *stretchSupplier) setEnabled(enabled bool) { s.enabled = enabled }

// setFactor sets how many inner frames one output frame consumes. Values
// are clamped to (0, maxTempoFactor].
func (s *stretchSupplier) setFactor(factor float64) {
	if factor <= 0 || math.IsNaN(factor) {
		factor = 1
	}
	if factor > maxTempoFactor {
		factor = maxTempoFactor
	}
	s.factor = factor
}

func (s *stretchSupplier) Available() int64 {
	avail := s.supplier.Available()
	if avail == Unbounded || !s.enabled || s.factor == 1 {
		return avail
	}
	return int64(float64(avail) / s.factor)
}

func (s *stretchSupplier) reanchor(start int64) {
	s.srcPos = int64(math.Round(float64(start) * s.factor))
	s.frac = 0
}

func (s *stretchSupplier) Supply(req Request, block *Block) Response {
	if !s.enabled || s.factor == 1 {
		s.nextOut = req.Start + int64(req.Frames)
		s.srcPos = s.nextOut
		return s.supplier.Supply(req, block)
	}
	if req.Start != s.nextOut {
		s.reanchor(req.Start)
	}
	frames := req.Frames
	if frames > MaxBlockFrames {
		frames = MaxBlockFrames
	}
	// inner frames needed to produce the block, plus one for interpolation
	need := int(math.Ceil(float64(frames)*s.factor+s.frac)) + 1
	inner := Request{Start: s.srcPos, Frames: need}
	s.sub.Events = block.Events
	s.sub.Audio = nil
	if block.Audio != nil {
		s.sub.Audio = s.scratch[:need]
	}
	eventsBefore := len(block.Events)
	resp := s.supplier.Supply(inner, &s.sub)
	block.Events = s.sub.Events
	// scale the event offsets from inner frames to output frames
	for i := eventsBefore; i < len(block.Events); i++ {
		block.Events[i].Frame = int64(float64(block.Events[i].Frame) / s.factor)
	}
	written := frames
	status := StatusContinue
	if resp.Status == StatusEnded {
		status = StatusEnded
		produced := int(float64(resp.Written) / s.factor)
		if produced < written {
			written = produced
		}
	}
	if block.Audio != nil {
		pos := s.frac
		for i := 0; i < written; i++ {
			idx := int(pos)
			if idx >= resp.Written {
				block.Audio[i] = [2]float32{}
				pos += s.factor
				continue
			}
			f := float32(pos - float64(idx))
			a := s.sub.Audio[idx]
			b := a
			if idx+1 < resp.Written {
				b = s.sub.Audio[idx+1]
			}
			block.Audio[i] = [2]float32{
				a[0] + (b[0]-a[0])*f,
				a[1] + (b[1]-a[1])*f,
			}
			pos += s.factor
		}
	}
	advance := float64(written)*s.factor + s.frac
	whole := math.Floor(advance)
	s.srcPos += int64(whole)
	s.frac = advance - whole
	s.nextOut = req.Start + int64(written)
	return Response{Written: written, Status: status}
}
