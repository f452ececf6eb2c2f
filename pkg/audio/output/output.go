// ABOUTME: Audio device interface definition
// ABOUTME: Common contract for pull-based playback backends
package output

import (
	"errors"
	"io"
	"time"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
)

// ErrNotOpen is returned when a device is used before Open
var ErrNotOpen = errors.New("output not initialized")

// Device is a pull-based audio sink. After Start the device reads from the
// reader given to Open on its own goroutine, in the negotiated format.
type Device interface {
	// Open negotiates format and attaches the reader the device pulls from
	Open(format audio.Format, r io.Reader) error

	// Start begins pulling and playing
	Start() error

	// Stop pauses pulling; it is safe to call more than once
	Stop() error

	// IsPlaying reports whether the device is still pulling
	IsPlaying() bool

	// Buffered returns the duration of audio pulled but not yet played
	Buffered() time.Duration

	// Err returns an asynchronous device error, if any
	Err() error

	// Close releases device resources
	Close() error
}
