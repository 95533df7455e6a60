package recording

import "fmt"

// State is the single tagged state of the voice capture gesture.
// PendingCancel is a sub-state of Active: the capture is live but the
// pointer has been dragged past the cancel threshold.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StatePendingCancel
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateRequesting:    "requesting",
	StateActive:        "active",
	StatePendingCancel: "pending_cancel",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recording reports whether a capture handle is held in this state.
func (s State) Recording() bool {
	return s == StateActive || s == StatePendingCancel
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown recording state %q", text)
}

// Affordance labels shown to the user while a capture is live.
const (
	AffordanceRecording       = "recording"
	AffordanceReleaseToCancel = "release to cancel"
)

// Snapshot is the live view of the controller for display.
type Snapshot struct {
	State          State  `json:"state"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	PendingCancel  bool   `json:"pendingCancel"`
	Clock          string `json:"clock"`
	Affordance     string `json:"affordance,omitempty"`
}

// NewSnapshot derives the display fields from state and elapsed seconds.
func NewSnapshot(state State, elapsed int) Snapshot {
	snap := Snapshot{
		State:          state,
		ElapsedSeconds: elapsed,
		PendingCancel:  state == StatePendingCancel,
		Clock:          FormatClock(elapsed),
	}
	switch state {
	case StateActive:
		snap.Affordance = AffordanceRecording
	case StatePendingCancel:
		snap.Affordance = AffordanceReleaseToCancel
	}
	return snap
}

// FormatClock formats elapsed seconds as mm:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
