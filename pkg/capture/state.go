package capture

// State is the lifecycle of a Stream.
type State int32

const (
	StateUnstarted State = iota
	StateRunning
	// StateStopping means a stop was requested. The loop notices within one
	// read timeout, closes the source and moves to StateStopped.
	StateStopping
	StateStopped
	// StateFailed is terminal. The source is closed and Err reports why.
	StateFailed
)

var stateNames = map[State]string{
	StateUnstarted: "unstarted",
	StateRunning:   "running",
	StateStopping:  "stopping",
	StateStopped:   "stopped",
	StateFailed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
