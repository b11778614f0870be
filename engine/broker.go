// Package engine contains the runtime of the clip matrix: the real-time
// scheduler that renders slots once per host audio block, the per-slot state
// machine, the recording pipeline and the control-side model. The two sides
// communicate exclusively through the Broker; the real-time side never
// blocks and never allocates.
package engine

import (
	"sync"
	"time"
)

type (
	// Broker is the centralized message hub between the control-side Model
	// and the real-time Engine. Commands flow control -> engine through a
	// single bounded channel of plain Command values (one producer, one
	// consumer, applied in order at the start of the next block); status and
	// infrequent data flow engine -> control through ToModel. The broker
	// also owns a sync.Pool of slot status buffers so the engine can publish
	// snapshots without allocating, and the allocation-free log ring that
	// the engine writes and the model drains.
	Broker struct {
		ToEngine chan Command
		ToModel  chan MsgToModel

		Log *RingLog

		CloseEngine    chan struct{}
		FinishedEngine chan struct{}

		statusPool sync.Pool
	}

	// MsgToModel is a message sent to the model. The frequently updated
	// fields (position, slot statuses) are plain values or pooled pointers
	// to avoid boxing allocations; infrequent messages travel in Data.
	MsgToModel struct {
		HasStatus bool
		Frame     int64
		BPM       float64
		HostLive  bool
		Peak      [2]float32
		RMS       [2]float32
		Statuses  *[]SlotStatus

		Data any
	}

	// Alert is an infrequent, human-readable notification from the engine,
	// e.g. a slot entering an error state.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

func NewBroker() *Broker {
	return &Broker{
		ToEngine:       make(chan Command, 1024),
		ToModel:        make(chan MsgToModel, 1024),
		Log:            NewRingLog(1024),
		CloseEngine:    make(chan struct{}, 1),
		FinishedEngine: make(chan struct{}),
		statusPool:     sync.Pool{New: func() any { s := make([]SlotStatus, 0, 256); return &s }},
	}
}

// GetStatusBuffer returns an empty slot status buffer from the pool. After
// use it should be returned with PutStatusBuffer.
func (b *Broker) GetStatusBuffer() *[]SlotStatus {
	return b.statusPool.Get().(*[]SlotStatus)
}

// PutStatusBuffer returns a status buffer to the pool, resetting its length
// but keeping its capacity.
func (b *Broker) PutStatusBuffer(s *[]SlotStatus) {
	if len(*s) > 0 {
		*s = (*s)[:0]
	}
	b.statusPool.Put(s)
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Returns true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from a channel, or times
// out after t. ok is false if the timeout occurred or the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
