// ABOUTME: Playback status shared between the audio and control goroutines
// ABOUTME: Written by the pull callback, polled by the session
package stream

import "fmt"

// Status is the state of a bridge as seen by the control goroutine
type Status int32

const (
	// Playing means the source is still producing audio
	Playing Status = iota
	// Finished means the source ended normally
	Finished
	// Failed means the source returned an error; see Bridge.Err
	Failed
)

func (s Status) String() string {
	switch s {
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Done reports whether the source will produce no more audio
func (s Status) Done() bool {
	return s != Playing
}
