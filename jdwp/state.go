package jdwp

import "fmt"

// State is the debugger attachment state of an Engine.
type State int

const (
	// Detached means no debugger session is established. Post operations
	// are no-ops.
	Detached State = iota
	// Attached means a debugger completed the handshake.
	Attached
	// ShuttingDown means VM death was posted or shutdown requested. No more
	// events are sent.
	ShuttingDown
	// Closed means the transport is released.
	Closed
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	case ShuttingDown:
		return "shutting-down"
	case Closed:
		return "closed"
	default:
		panic(fmt.Sprintf("unexpected state: %d", int(s)))
	}
}
