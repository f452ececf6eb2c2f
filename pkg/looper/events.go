// ABOUTME: Loop controller events
// ABOUTME: Diagnostics reported synchronously from the pulling goroutine
package looper

import (
	"errors"
	"fmt"
)

var (
	// ErrLoopStartNotReached marks a loop end reached before the loop start was ever played
	ErrLoopStartNotReached = errors.New("loop end reached before loop start")

	// ErrLoopStartInFirstPacket marks a loop start inside the first decodable packet,
	// which has no decoder marker to seek back to
	ErrLoopStartInFirstPacket = errors.New("loop start inside the first decoded packet")
)

// EventKind identifies a controller event
type EventKind int

const (
	// EventLoopFound is emitted when the loop start position is captured
	EventLoopFound EventKind = iota
	// EventLooping is emitted after each seek back to the loop start
	EventLooping
	// EventLoopUnavailable is emitted when looping is disabled; Err holds the cause
	EventLoopUnavailable
	// EventLoopExhausted is emitted when the loop limit stops further iterations
	EventLoopExhausted
	// EventEnd is emitted when the stream ends normally
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventLoopFound:
		return "loop_found"
	case EventLooping:
		return "looping"
	case EventLoopUnavailable:
		return "loop_unavailable"
	case EventLoopExhausted:
		return "loop_exhausted"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes a change in loop state
type Event struct {
	Kind      EventKind
	Position  Position
	AbsPos    int64
	Iteration int
	Err       error
}

// String renders the event as a status line
func (e Event) String() string {
	switch e.Kind {
	case EventLoopFound:
		return "Found start: " + e.Position.String()
	case EventLooping:
		return "Looping"
	case EventLoopUnavailable:
		if errors.Is(e.Err, ErrLoopStartInFirstPacket) {
			return "Loop start inside the first packet, can't loop"
		}
		return "Unknown start position, can't loop"
	case EventLoopExhausted:
		return fmt.Sprintf("Loop limit reached after %d iterations", e.Iteration)
	case EventEnd:
		return "Done"
	default:
		return e.Kind.String()
	}
}
