package supplier

import (
	"github.com/helgoboss/clipmatrix"
)

// materialSupplier is the innermost stage: it reads raw frames or MIDI events
// straight out of a clipmatrix.Source. Requests before frame 0 deliver
// silence (that range belongs to the count-in), requests past the material
// end report StatusEnded.
type materialSupplier struct {
	source *clipmatrix.Source
}

func newMaterialSupplier(source *clipmatrix.Source) *materialSupplier {
	return &materialSupplier{source: source}
}

func (s *materialSupplier) Available() int64 {
	return s.source.FrameCount()
}

func (s *materialSupplier) Supply(req Request, block *Block) Response {
	length := s.source.FrameCount()
	if req.Start >= length {
		return Response{Status: StatusEnded}
	}
	end := req.Start + int64(req.Frames)
	written := req.Frames
	status := StatusContinue
	if end >= length {
		written = int(length - req.Start)
		status = StatusEnded
	}
	if s.source.IsMidi() {
		for _, e := range s.source.Midi.EventsIn(req.Start, req.Start+int64(written)) {
			block.appendEvent(clipmatrix.MidiEvent{Frame: e.Frame - req.Start, Msg: e.Msg})
		}
		return Response{Written: written, Status: status}
	}
	audio := s.source.Audio
	for i := 0; i < written; i++ {
		pos := req.Start + int64(i)
		if pos < 0 {
			block.Audio[i] = [2]float32{}
			continue
		}
		block.Audio[i] = audio[pos]
	}
	return Response{Written: written, Status: status}
}
