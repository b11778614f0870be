//go:build cgo

package main

import (
	"github.com/helgoboss/clipmatrix/engine/gomidi"
)

func newMidiContext(sampleRate int) midiContext {
	return gomidi.NewContext(sampleRate)
}
