// Package oto implements clipmatrix.AudioOutput on top of the ebitengine oto
// library, for standalone playback without a plugin host.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/helgoboss/clipmatrix"
)

type (
	OtoContext struct {
		context *oto.Context
	}

	OtoPlayer struct {
		player *oto.Player
	}
)

// NewContext opens the system audio output for 16-bit stereo playback at the
// given sample rate. It blocks until the output is ready.
func NewContext(sampleRate int) (*OtoContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context}, nil
}

// Play starts pulling 16-bit little-endian stereo PCM from the reader.
func (c *OtoContext) Play(r io.Reader) clipmatrix.CloserWaiter {
	player := c.context.NewPlayer(r)
	player.Play()
	return OtoPlayer{player: player}
}

func (c *OtoContext) Close() error { return nil }

func (p OtoPlayer) Close() error {
	return p.player.Close()
}

func (p OtoPlayer) Wait() {
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}
