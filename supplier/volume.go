package supplier

// volumeSupplier is the final and cheapest stage: it scales the delivered
// audio by the clip's gain. It runs unconditionally, which is why it sits at
// the very end of the chain.
type volumeSupplier struct {
	supplier Supplier
	gain     float32
}

func newVolumeSupplier(supplier Supplier) *volumeSupplier {
	return &volumeSupplier{supplier: supplier, gain: 1}
}

func (v *volumeSupplier) setGain(gain float32) {
	if gain < 0 {
		gain = 0
	}
	v.gain = gain
}

func (v *volumeSupplier) Available() int64 { return v.supplier.Available() }

func (v *volumeSupplier) Supply(req Request, block *Block) Response {
	resp := v.supplier.Supply(req, block)
	if block.Audio == nil || v.gain == 1 {
		return resp
	}
	for i := 0; i < resp.Written; i++ {
		block.Audio[i][0] *= v.gain
		block.Audio[i][1] *= v.gain
	}
	return resp
}
