// Package gomidi connects a running matrix to real MIDI hardware through the
// rtmidi driver: incoming messages become timestamped input events for the
// recording pipeline, the engine's MIDI output goes to an output port.
package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/engine"
	"github.com/helgoboss/clipmatrix/timing"
)

type (
	RTMIDIContext struct {
		driver             *rtmididrv.Driver
		currentIn          drivers.In
		currentOut         drivers.Out
		send               func(midi.Message) error
		inputDevices       []RTMIDIDevice
		devicesInitialized bool
		events             chan timestampedMsg
		block              []clipmatrix.MidiEvent
		startFrame         int
		startFrameSet      bool
		sampleRate         int
	}

	RTMIDIDevice struct {
		context *RTMIDIContext
		in      drivers.In
	}

	timestampedMsg struct {
		frame int
		msg   midi.Message
	}
)

var _ engine.ProcessContext = (*RTMIDIContext)(nil)

// NewContext opens the rtmidi driver.
func NewContext(sampleRate int) *RTMIDIContext {
	m := RTMIDIContext{
		events:     make(chan timestampedMsg, 1024),
		block:      make([]clipmatrix.MidiEvent, 0, 1024),
		sampleRate: sampleRate,
	}
	// there's not much we can do if this fails, so just use m.driver = nil to
	// indicate no driver available
	m.driver, _ = rtmididrv.New()
	return &m
}

func (m *RTMIDIContext) InputDevices(yield func(RTMIDIDevice) bool) {
	if m.devicesInitialized {
		for _, device := range m.inputDevices {
			if !yield(device) {
				break
			}
		}
		return
	}
	if m.driver == nil {
		return
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return
	}
	for i := 0; i < len(ins); i++ {
		device := RTMIDIDevice{context: m, in: ins[i]}
		m.inputDevices = append(m.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	m.devicesInitialized = true
}

// Open an input device while closing the currently open if necessary.
func (d RTMIDIDevice) Open() error {
	c := d.context
	if c.currentIn == d.in {
		return nil
	}
	if c.driver == nil {
		return errors.New("no driver available")
	}
	if c.HasDeviceOpen() {
		c.currentIn.Close()
	}
	c.currentIn = d.in
	if err := d.in.Open(); err != nil {
		c.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	if _, err := midi.ListenTo(d.in, c.handleMessage); err != nil {
		d.in.Close()
		c.currentIn = nil
		return err
	}
	return nil
}

func (d RTMIDIDevice) String() string { return d.in.String() }

func (c *RTMIDIContext) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

// TryToOpenBy opens the first input device whose name starts with the given
// prefix, or just the first device when takeFirst is set.
func (c *RTMIDIContext) TryToOpenBy(namePrefix string, takeFirst bool) {
	if namePrefix == "" && !takeFirst {
		return
	}
	c.InputDevices(func(input RTMIDIDevice) bool {
		if takeFirst || strings.HasPrefix(input.String(), namePrefix) {
			input.Open()
			return false
		}
		return true
	})
}

// OpenFirstOut connects the engine's MIDI output to the first available
// output port.
func (c *RTMIDIContext) OpenFirstOut() error {
	if c.driver == nil {
		return errors.New("no driver available")
	}
	outs, err := c.driver.Outs()
	if err != nil || len(outs) == 0 {
		return errors.New("no MIDI output available")
	}
	if err := outs[0].Open(); err != nil {
		return fmt.Errorf("opening MIDI output failed: %w", err)
	}
	c.currentOut = outs[0]
	c.send, err = midi.SendTo(outs[0])
	return err
}

func (c *RTMIDIContext) Close() {
	if c.driver == nil {
		return
	}
	if c.currentIn != nil && c.currentIn.IsOpen() {
		c.currentIn.Close()
	}
	if c.currentOut != nil && c.currentOut.IsOpen() {
		c.currentOut.Close()
	}
	c.driver.Close()
}

func (c *RTMIDIContext) handleMessage(msg midi.Message, timestampms int32) {
	f := int(int64(timestampms) * int64(c.sampleRate) / 1000)
	select {
	case c.events <- timestampedMsg{frame: f, msg: msg}: // if the channel is full, just drop the message
	default:
	}
}

// BeginBlock collects the messages received since the last block and places
// them inside the upcoming block of the given length. The rtmidi timestamps
// run on their own clock; the first message anchors it to the block clock,
// later drift is absorbed by clamping into the block.
func (c *RTMIDIContext) BeginBlock(frames int) {
	c.block = c.block[:0]
	for {
		select {
		case m := <-c.events:
			if !c.startFrameSet {
				c.startFrame = m.frame
				c.startFrameSet = true
			}
			f := m.frame - c.startFrame
			if f < 0 {
				c.startFrame = m.frame
				f = 0
			}
			if f >= frames {
				f = frames - 1
			}
			c.block = append(c.block, clipmatrix.MidiEvent{Frame: int64(f), Msg: m.msg})
		default:
			return
		}
	}
}

// EndBlock advances the anchor by the rendered block length.
func (c *RTMIDIContext) EndBlock(frames int) {
	c.startFrame += frames
}

func (c *RTMIDIContext) HostTransport() timing.HostTransportInfo {
	return timing.HostTransportInfo{}
}

func (c *RTMIDIContext) InputFor(sel clipmatrix.InputSelector, column int) clipmatrix.AudioBuffer {
	return nil
}

func (c *RTMIDIContext) MidiIn() []clipmatrix.MidiEvent { return c.block }

func (c *RTMIDIContext) SendMidi(ev clipmatrix.MidiEvent) {
	if c.send != nil {
		c.send(ev.Msg)
	}
}
