package engine

// SlotState is the discrete playback state of a slot. It is a closed set;
// every transition function switches exhaustively over it, so invalid
// combinations cannot be represented. Empty and Stopped are both
// re-enterable; there is no terminal state.
type SlotState int

const (
	Empty SlotState = iota
	Stopped
	ScheduledForPlayStart
	Playing
	Paused
	ScheduledForPlayStop
	ScheduledForRecordStart
	Recording
	ScheduledForRecordStop
)

var slotStateNames = [...]string{
	Empty:                   "empty",
	Stopped:                 "stopped",
	ScheduledForPlayStart:   "scheduled_for_play_start",
	Playing:                 "playing",
	Paused:                  "paused",
	ScheduledForPlayStop:    "scheduled_for_play_stop",
	ScheduledForRecordStart: "scheduled_for_record_start",
	Recording:               "recording",
	ScheduledForRecordStop:  "scheduled_for_record_stop",
}

func (s SlotState) String() string {
	if int(s) < len(slotStateNames) {
		return slotStateNames[s]
	}
	return "unknown"
}

// IsScheduled reports whether the slot waits for a trigger frame.
func (s SlotState) IsScheduled() bool {
	switch s {
	case ScheduledForPlayStart, ScheduledForPlayStop, ScheduledForRecordStart, ScheduledForRecordStop:
		return true
	}
	return false
}

// IsPlayingOrScheduledToPlay reports whether material will (keep) sounding
// without further commands.
func (s SlotState) IsPlayingOrScheduledToPlay() bool {
	switch s {
	case ScheduledForPlayStart, Playing:
		return true
	}
	return false
}

// IsRecordingOrScheduledToRecord reports whether the slot is tied up with a
// recording.
func (s SlotState) IsRecordingOrScheduledToRecord() bool {
	switch s {
	case ScheduledForRecordStart, Recording, ScheduledForRecordStop:
		return true
	}
	return false
}
