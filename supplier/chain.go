package supplier

import (
	"math"

	"github.com/helgoboss/clipmatrix"
)

// Chain is the supplier chain of one clip. The stage order, inner to outer,
// is fixed: raw material, section trim, loop wrap, downbeat shift,
// time-stretch, fades, volume. Fades come after loop wrapping so that they
// see the real material boundaries and leave loop seams continuous; volume
// is last because it is the one stage that always runs. Individual stages
// switch themselves off when a clip does not need them, so the hot path has
// no per-clip branching beyond each stage's own enabled check.
type Chain struct {
	material  *materialSupplier
	section   *sectionSupplier
	looper    *looperSupplier
	downbeat  *downbeatSupplier
	stretcher *stretchSupplier
	fader     *faderSupplier
	volume    *volumeSupplier

	isMidi bool
}

// NewChain builds the chain for the given source. All scratch memory is
// allocated here, in the control context; Supply never allocates.
func NewChain(source *clipmatrix.Source) *Chain {
	material := newMaterialSupplier(source)
	section := newSectionSupplier(material)
	looper := newLooperSupplier(section)
	downbeat := newDownbeatSupplier(looper)
	stretcher := newStretchSupplier(downbeat)
	fader := newFaderSupplier(stretcher)
	volume := newVolumeSupplier(fader)
	return &Chain{
		material:  material,
		section:   section,
		looper:    looper,
		downbeat:  downbeat,
		stretcher: stretcher,
		fader:     fader,
		volume:    volume,
		isMidi:    source.IsMidi(),
	}
}

// Configure applies the clip's playback settings to the stages. Called from
// the control context before the chain is handed to the engine, and again
// whenever a clip property changes (the changed chain settings are simple
// field writes, applied via the command queue).
func (c *Chain) Configure(clip *clipmatrix.Clip) {
	c.section.setSection(clip.Section.Start, clip.Section.Length)
	c.looper.setEnabled(clip.Looped)
	c.downbeat.setOffset(clip.DownbeatFrames)
	c.stretcher.setEnabled(clip.TimeBase == clipmatrix.TimeBaseBeat)
	c.fader.setSourceFades(!c.isMidi)
	c.volume.setGain(clip.Volume)
}

func (c *Chain) IsMidi() bool { return c.isMidi }

// NewBlock returns a block sized for this chain, for the engine to pull
// into. Audio is nil for MIDI chains.
func (c *Chain) NewBlock() Block {
	b := Block{Events: make([]clipmatrix.MidiEvent, 0, maxEvents)}
	if !c.isMidi {
		b.Audio = make(clipmatrix.AudioBuffer, MaxBlockFrames)
	}
	return b
}

// SetTempoFactor sets how many source frames one output frame consumes,
// computed once per processing block from the timeline tempo.
func (c *Chain) SetTempoFactor(factor float64) {
	c.stretcher.setFactor(factor)
}

// SetVolume adjusts the final gain stage.
func (c *Chain) SetVolume(gain float32) {
	c.volume.setGain(gain)
}

// SetLooped toggles the loop stage.
func (c *Chain) SetLooped(looped bool) {
	c.looper.setEnabled(looped)
}

// CycleLength returns the length of one material cycle in frames (after
// section trim, before stretching), which is also where an
// until-end-of-clip stop takes effect.
func (c *Chain) CycleLength() int64 {
	return c.section.Available()
}

// FramesUntilCycleEnd returns how many logical frames of playback remain
// until the current material cycle completes. Returns 0 when the clip has no
// material. The result depends on the current tempo factor, so callers
// re-evaluate it every processing block.
func (c *Chain) FramesUntilCycleEnd() int64 {
	cycle := c.section.Available()
	if cycle <= 0 {
		return 0
	}
	pos := c.stretcher.srcPos + c.downbeat.offset
	var rem int64
	if pos < 0 {
		rem = -pos + cycle
	} else {
		rem = cycle - pos%cycle
	}
	if c.stretcher.enabled && c.stretcher.factor != 1 {
		rem = int64(math.Ceil(float64(rem) / c.stretcher.factor))
	}
	return rem
}

// Available returns through which logical frame the chain can deliver
// material.
func (c *Chain) Available() int64 {
	return c.volume.Available()
}

// Supply pulls material for the requested logical frame range.
func (c *Chain) Supply(req Request, block *Block) Response {
	return c.volume.Supply(req, block)
}

// BeginFadeIn prepares the chain for a sudden start.
func (c *Chain) BeginFadeIn() { c.fader.beginFadeIn() }

// BeginFadeOut starts a short fade after which the chain reports
// StatusEnded; used for immediate stops.
func (c *Chain) BeginFadeOut() { c.fader.beginFadeOut() }

// Reset rewinds transient stage state (fades) for a fresh playback.
func (c *Chain) Reset() { c.fader.reset() }
