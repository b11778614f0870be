//go:build !cgo

package main

import "errors"

// with no cgo, we cannot use MIDI, so return a null context
func newMidiContext(sampleRate int) midiContext {
	return nullMidiContext{}
}

type nullMidiContext struct{ nullContext }

func (nullMidiContext) TryToOpenBy(namePrefix string, takeFirst bool) {}
func (nullMidiContext) OpenFirstOut() error                          { return errors.New("MIDI needs cgo") }
func (nullMidiContext) Close()                                       {}
