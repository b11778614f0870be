package supplier

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/helgoboss/clipmatrix"
)

// FadeFrames is the length of all engine fades. Short enough to be
// inaudible as an envelope, long enough to remove clicks.
const FadeFrames = 240

// faderSupplier removes clicks. It applies three kinds of fades, all after
// loop wrapping so that loop seams stay untouched and continuous:
//
//   - a source fade-in over the first frames of the material,
//   - a source fade-out towards the reported end of bounded material
//     (one-shot clips and section ends; looped clips have no end),
//   - ad-hoc fades for sudden starts and stops requested mid-playback.
//
// A finished ad-hoc fade-out ends the material from the chain's point of
// view and, for MIDI clips, emits an all-notes-off so nothing keeps
// sounding.
type faderSupplier struct {
	supplier    Supplier
	sourceFades bool

	fadeInPos  int // frames of ad-hoc fade-in already played; >= FadeFrames means none active
	fadeOutPos int // frames of ad-hoc fade-out already played
	fadingOut  bool
	ended      bool

	allNotesOff clipmatrix.MidiEvent
}

func newFaderSupplier(supplier Supplier) *faderSupplier {
	return &faderSupplier{
		supplier:    supplier,
		sourceFades: true,
		fadeInPos:   FadeFrames,
		allNotesOff: clipmatrix.MidiEvent{Msg: midi.ControlChange(0, 123, 0)},
	}
}

func (f *faderSupplier) setSourceFades(enabled bool) { f.sourceFades = enabled }

// beginFadeIn starts an ad-hoc fade-in, used for sudden starts and resume
// from pause.
func (f *faderSupplier) beginFadeIn() {
	f.fadeInPos = 0
	f.fadingOut = false
	f.fadeOutPos = 0
	f.ended = false
}

// beginFadeOut starts an ad-hoc fade-out; after FadeFrames frames the
// supplier reports StatusEnded.
func (f *faderSupplier) beginFadeOut() {
	if f.fadingOut || f.ended {
		return
	}
	f.fadingOut = true
	f.fadeOutPos = 0
}

func (f *faderSupplier) reset() {
	f.fadeInPos = FadeFrames
	f.fadingOut = false
	f.fadeOutPos = 0
	f.ended = false
}

func (f *faderSupplier) Available() int64 { return f.supplier.Available() }

func (f *faderSupplier) Supply(req Request, block *Block) Response {
	if f.ended {
		return Response{Status: StatusEnded}
	}
	resp := f.supplier.Supply(req, block)
	if block.Audio != nil {
		f.applySourceFades(req, block, resp.Written)
		f.applyAdHocFades(block, resp.Written)
	} else if f.fadingOut {
		// MIDI has nothing to ramp; cut at the fade end instead
		f.fadeOutPos += resp.Written
	}
	if f.fadingOut && f.fadeOutPos >= FadeFrames {
		f.ended = true
		resp.Status = StatusEnded
		if block.Audio == nil {
			e := f.allNotesOff
			e.Frame = int64(resp.Written)
			block.appendEvent(e)
		}
	}
	return resp
}

func (f *faderSupplier) applySourceFades(req Request, block *Block, written int) {
	if !f.sourceFades {
		return
	}
	// positions here are logical frames, after loop wrapping: a looped clip
	// gets the fade-in only on its first pass and later cycles run the raw
	// seam, so the cycle content stays continuous
	for i := 0; i < written; i++ {
		pos := req.Start + int64(i)
		if pos >= 0 && pos < FadeFrames {
			g := float32(pos) / FadeFrames
			block.Audio[i][0] *= g
			block.Audio[i][1] *= g
		}
	}
	if avail := f.supplier.Available(); avail != Unbounded {
		for i := 0; i < written; i++ {
			left := avail - (req.Start + int64(i))
			if left > 0 && left < FadeFrames {
				g := float32(left) / FadeFrames
				block.Audio[i][0] *= g
				block.Audio[i][1] *= g
			}
		}
	}
}

func (f *faderSupplier) applyAdHocFades(block *Block, written int) {
	for i := 0; i < written && f.fadeInPos < FadeFrames; i++ {
		g := float32(f.fadeInPos) / FadeFrames
		block.Audio[i][0] *= g
		block.Audio[i][1] *= g
		f.fadeInPos++
	}
	if !f.fadingOut {
		return
	}
	for i := 0; i < written; i++ {
		g := float32(FadeFrames-f.fadeOutPos) / FadeFrames
		if g < 0 {
			g = 0
		}
		block.Audio[i][0] *= g
		block.Audio[i][1] *= g
		if f.fadeOutPos < FadeFrames {
			f.fadeOutPos++
		}
	}
}
