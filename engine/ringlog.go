package engine

import "sync/atomic"

type (
	// RingLog is a bounded single-producer/single-consumer ring of log
	// entries. The real-time side pushes fixed-size entries without
	// allocating or blocking; the control side drains them at its leisure.
	// When the ring is full, entries are dropped and counted, never waited
	// on.
	RingLog struct {
		entries []LogEntry
		mask    uint64
		head    atomic.Uint64 // next write position, owned by the producer
		tail    atomic.Uint64 // next read position, owned by the consumer
		dropped atomic.Uint64
	}

	LogEntry struct {
		Frame int64
		Code  LogCode
		Col   int32
		Row   int32
		Arg   int64
	}

	LogCode int32
)

const (
	LogCommand LogCode = iota
	LogStateChange
	LogRecordingFinished
	LogRecordingDropped
	LogSlotError
	LogSwapDeferred
)

// NewRingLog creates a ring with the given capacity, rounded up to a power
// of two.
func NewRingLog(capacity int) *RingLog {
	n := 1
	for n < capacity {
		n *= 2
	}
	return &RingLog{entries: make([]LogEntry, n), mask: uint64(n - 1)}
}

// Push appends an entry. Real-time safe: lock-free, allocation-free, drops
// on overflow.
func (l *RingLog) Push(e LogEntry) {
	head := l.head.Load()
	if head-l.tail.Load() >= uint64(len(l.entries)) {
		l.dropped.Add(1)
		return
	}
	l.entries[head&l.mask] = e
	l.head.Store(head + 1)
}

// Drain calls fn for every pending entry, in push order. Only the control
// side may call this.
func (l *RingLog) Drain(fn func(LogEntry)) {
	tail := l.tail.Load()
	head := l.head.Load()
	for ; tail < head; tail++ {
		fn(l.entries[tail&l.mask])
	}
	l.tail.Store(tail)
}

// Dropped returns how many entries have been lost to overflow so far.
func (l *RingLog) Dropped() uint64 {
	return l.dropped.Load()
}
