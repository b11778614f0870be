package engine

import (
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/supplier"
)

// meter measures the master output once per processing block: the peak of
// each channel for clip indication and the mean power for a slow level
// display. All scratch is pre-allocated; update runs in the real-time
// context.
type meter struct {
	tmp  []float32
	tmp2 []float32

	peak  [2]float32
	power [2]float32
}

func newMeter() *meter {
	return &meter{
		tmp:  make([]float32, supplier.MaxBlockFrames),
		tmp2: make([]float32, supplier.MaxBlockFrames),
	}
}

func (m *meter) update(buf clipmatrix.AudioBuffer) {
	n := len(buf)
	if n == 0 {
		return
	}
	for chn := 0; chn < 2; chn++ {
		o := m.tmp[:n]
		for i := 0; i < n; i++ {
			o[i] = buf[i][chn]
		}
		sq := vek32.Mul_Into(m.tmp2, o, o)
		m.power[chn] = vek32.Mean(sq)
		vek32.Abs_Inplace(o)
		m.peak[chn] = vek32.Max(o)
	}
}

// rms returns the root mean square level of the last block for one channel.
func (m *meter) rms(chn int) float32 {
	return float32(math.Sqrt(float64(m.power[chn])))
}
