package supplier

// sectionSupplier restricts playback non-destructively to a sub-range of the
// inner material: frame 0 of this stage is frame start of the inner one, and
// material ends after length frames (or at the natural end if length is 0).
type sectionSupplier struct {
	supplier Supplier
	start    int64
	length   int64
	sub      Block
}

func newSectionSupplier(supplier Supplier) *sectionSupplier {
	return &sectionSupplier{supplier: supplier}
}

func (s *sectionSupplier) setSection(start, length int64) {
	s.start = start
	s.length = length
}

func (s *sectionSupplier) Available() int64 {
	natural := s.supplier.Available() - s.start
	if natural < 0 {
		natural = 0
	}
	if s.length > 0 && s.length < natural {
		return s.length
	}
	return natural
}

func (s *sectionSupplier) Supply(req Request, block *Block) Response {
	length := s.Available()
	if req.Start >= length {
		return Response{Status: StatusEnded}
	}
	frames := req.Frames
	hitEnd := false
	if req.Start+int64(frames) >= length {
		frames = int(length - req.Start)
		hitEnd = true
	}
	if req.Start < 0 {
		// count-in region; deliver silence up to frame 0, never the
		// material that precedes the section
		silent := int(-req.Start)
		if silent >= frames {
			block.zeroAudio(0, frames)
			status := StatusContinue
			if hitEnd {
				status = StatusEnded
			}
			return Response{Written: frames, Status: status}
		}
		block.zeroAudio(0, silent)
		resp := supplyAt(s.supplier, Request{Start: s.start, Frames: frames - silent}, block, silent, &s.sub)
		resp.Written += silent
		if hitEnd {
			resp.Status = StatusEnded
		}
		return resp
	}
	inner := Request{Start: req.Start + s.start, Frames: frames}
	resp := s.supplier.Supply(inner, block)
	if hitEnd {
		resp.Status = StatusEnded
	}
	return resp
}
