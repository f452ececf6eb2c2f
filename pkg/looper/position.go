// ABOUTME: Stream positions and loop points
// ABOUTME: Parses LOOPSTART/LOOPEND tags into validated loop points
package looper

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Resonate-Protocol/playloop/pkg/audio/decode"
)

// Loop tag names (matched case-insensitively)
const (
	TagLoopStart = "LOOPSTART"
	TagLoopEnd   = "LOOPEND"
)

// MarkerUnknown is the marker of a position not yet anchored to a decoder
// packet: the start of the stream, and the first packet after a seek.
const MarkerUnknown int64 = -1

var (
	// ErrBadLoopTag is returned when a loop tag is present but not a non-negative integer
	ErrBadLoopTag = errors.New("invalid loop tag")

	// ErrInvalidLoop is returned when the loop start is not before the loop end
	ErrInvalidLoop = errors.New("loop start must be before loop end")
)

// Position locates a frame in the decoded stream with packet precision.
// Marker is the decoder marker of the last marker change seen before the
// packet, and Offset counts frames emitted since that change.
type Position struct {
	Marker int64
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("marker=%d offset=%d", p.Marker, p.Offset)
}

// Points are loop boundaries in absolute frames from the start of playback.
// Playback runs [0, End) and then repeats [Start, End).
type Points struct {
	Start int64
	End   int64
}

// Validate checks Start < End and that both are non-negative
func (p Points) Validate() error {
	if p.Start < 0 || p.End < 0 {
		return fmt.Errorf("%w: negative loop point (start=%d end=%d)", ErrInvalidLoop, p.Start, p.End)
	}
	if p.Start >= p.End {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidLoop, p.Start, p.End)
	}
	return nil
}

// Len returns the number of frames in one loop iteration
func (p Points) Len() int64 {
	return p.End - p.Start
}

// LoopStatus describes whether looping will happen
type LoopStatus int

const (
	// LoopNone means no loop tags were present
	LoopNone LoopStatus = iota
	// LoopIncomplete means only one of the two loop tags was present
	LoopIncomplete
	// LoopArmed means loop points are configured but the start has not been reached yet
	LoopArmed
	// LoopConfirmed means the loop start was captured and the end will seek back
	LoopConfirmed
	// LoopUnavailable means looping was disabled after a diagnostic
	LoopUnavailable
	// LoopExhausted means the configured loop limit was reached
	LoopExhausted
)

func (s LoopStatus) String() string {
	switch s {
	case LoopNone:
		return "none"
	case LoopIncomplete:
		return "incomplete"
	case LoopArmed:
		return "armed"
	case LoopConfirmed:
		return "confirmed"
	case LoopUnavailable:
		return "unavailable"
	case LoopExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("LoopStatus(%d)", int(s))
	}
}

// ParsePoints reads the loop tags from stream metadata.
//
// With both tags present the status is LoopArmed. With one tag present the
// status is LoopIncomplete and no error is returned.
func ParsePoints(meta decode.Metadata) (Points, LoopStatus, error) {
	start, hasStart, err := parseTag(meta, TagLoopStart)
	if err != nil {
		return Points{}, LoopNone, err
	}
	end, hasEnd, err := parseTag(meta, TagLoopEnd)
	if err != nil {
		return Points{}, LoopNone, err
	}

	switch {
	case hasStart && hasEnd:
		p := Points{Start: start, End: end}
		if err := p.Validate(); err != nil {
			return Points{}, LoopNone, err
		}
		return p, LoopArmed, nil
	case hasStart || hasEnd:
		return Points{Start: start, End: end}, LoopIncomplete, nil
	default:
		return Points{}, LoopNone, nil
	}
}

func parseTag(meta decode.Metadata, key string) (int64, bool, error) {
	v, ok := meta.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, 63)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", ErrBadLoopTag, key, v)
	}
	return int64(n), true, nil
}
