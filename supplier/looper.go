package supplier

// looperSupplier wraps the inner material into an endless sequence of
// identical cycles. The cycle length is whatever the inner stage reports as
// available, so a section restriction shortens the cycle as well. When
// disabled (one-shot clips), requests pass through untouched.
type looperSupplier struct {
	supplier Supplier
	enabled  bool
	sub      Block
}

func newLooperSupplier(supplier Supplier) *looperSupplier {
	return &looperSupplier{supplier: supplier}
}

func (l *looperSupplier) setEnabled(enabled bool) { l.enabled = enabled }

func (l *looperSupplier) Available() int64 {
	if l.enabled && l.supplier.Available() > 0 {
		return Unbounded
	}
	return l.supplier.Available()
}

func (l *looperSupplier) Supply(req Request, block *Block) Response {
	cycle := l.supplier.Available()
	if !l.enabled || cycle <= 0 {
		return l.supplier.Supply(req, block)
	}
	written := 0
	pos := req.Start
	for written < req.Frames {
		n := req.Frames - written
		var inner Request
		if pos < 0 {
			// count-in region; deliver silence up to frame 0
			if int64(n) > -pos {
				n = int(-pos)
			}
			block.zeroAudio(written, written+n)
			written += n
			pos += int64(n)
			continue
		}
		cyclePos := pos % cycle
		if int64(n) > cycle-cyclePos {
			n = int(cycle - cyclePos)
		}
		inner = Request{Start: cyclePos, Frames: n}
		resp := supplyAt(l.supplier, inner, block, written, &l.sub)
		written += resp.Written
		pos += int64(resp.Written)
		if resp.Written < n && resp.Status == StatusEnded {
			// inner delivered less than its reported cycle; treat the
			// shortfall as the cycle end and keep wrapping from there
			pos += int64(n - resp.Written)
			block.zeroAudio(written, written+n-resp.Written)
			written += n - resp.Written
		}
	}
	return Response{Written: written, Status: StatusContinue}
}

// supplyAt delegates a request so that the delivered material lands at the
// given frame offset of the block, fixing up audio placement and event
// frames. sub is the calling stage's scratch block, reused across calls so
// the hot path stays allocation-free.
func supplyAt(s Supplier, req Request, block *Block, offset int, sub *Block) Response {
	sub.Events = block.Events
	sub.Audio = nil
	if block.Audio != nil {
		sub.Audio = block.Audio[offset : offset+req.Frames]
	}
	eventsBefore := len(block.Events)
	resp := s.Supply(req, sub)
	block.Events = sub.Events
	for i := eventsBefore; i < len(block.Events); i++ {
		block.Events[i].Frame += int64(offset)
	}
	return resp
}
