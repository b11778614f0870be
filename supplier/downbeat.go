package supplier

// downbeatSupplier shifts the material so that its downbeat, rather than its
// first frame, lands on logical frame 0. A clip recorded with a two-beat
// pickup has offset = two beats worth of frames; the pickup material then
// sounds during the count-in phase, at logical frames [-offset, 0).
type downbeatSupplier struct {
	supplier Supplier
	offset   int64
	sub      Block
}

func newDownbeatSupplier(supplier Supplier) *downbeatSupplier {
	return &downbeatSupplier{supplier: supplier}
}

func (d *downbeatSupplier) setOffset(frames int64) {
	if frames < 0 {
		frames = 0
	}
	d.offset = frames
}

func (d *downbeatSupplier) Available() int64 {
	avail := d.supplier.Available()
	if avail == Unbounded {
		return Unbounded
	}
	return avail - d.offset
}

func (d *downbeatSupplier) Supply(req Request, block *Block) Response {
	if d.offset == 0 {
		return d.supplier.Supply(req, block)
	}
	start := req.Start + d.offset
	if start >= 0 {
		return d.supplier.Supply(Request{Start: start, Frames: req.Frames}, block)
	}
	// silence before the pickup material begins
	silent := int(-start)
	if silent >= req.Frames {
		block.zeroAudio(0, req.Frames)
		return Response{Written: req.Frames, Status: StatusContinue}
	}
	block.zeroAudio(0, silent)
	resp := supplyAt(d.supplier, Request{Start: 0, Frames: req.Frames - silent}, block, silent, &d.sub)
	resp.Written += silent
	return resp
}
