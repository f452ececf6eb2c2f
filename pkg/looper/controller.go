// ABOUTME: Position and loop controller
// ABOUTME: Pulls decoded frames, seeks back at the loop end and resyncs to the exact start frame
package looper

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/playloop/pkg/audio/decode"
)

var (
	// ErrResyncOvershoot is returned when a seek lands past the loop start marker
	ErrResyncOvershoot = errors.New("seek landed after the loop start marker")

	// ErrUnexpectedEnd is returned when the stream ends while a confirmed loop is armed
	ErrUnexpectedEnd = errors.New("stream ended before loop end")

	// ErrMisaligned is returned when a packet is not a whole number of frames
	ErrMisaligned = errors.New("packet not aligned with channel count")
)

// Option configures a Controller
type Option func(*Controller)

// WithLoop overrides the loop tags of the stream
func WithLoop(p Points) Option {
	return func(c *Controller) {
		c.override = &p
	}
}

// WithMaxLoops limits the number of seeks back to the loop start.
// After n seeks the stream plays through to its end. Zero loops forever.
func WithMaxLoops(n int) Option {
	return func(c *Controller) {
		c.maxLoops = n
	}
}

// WithObserver registers a callback for loop events. It runs on the
// goroutine calling Pull and must not block.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller tracks the decoded stream position and loops it seamlessly.
//
// A Controller is not safe for concurrent use. It is created on the control
// goroutine and then owned by whichever goroutine calls Pull.
type Controller struct {
	dec        decode.Decoder
	channels   int
	sampleRate int

	loop     Points
	status   LoopStatus
	override *Points
	maxLoops int
	observer func(Event)

	absPos int64

	// buf is the current packet, owned by the decoder until the next NextPacket
	buf    []int16
	bufPos int

	cur     Position
	next    Position
	hasNext bool

	origin    Position
	hasOrigin bool
	start     Position
	hasStart  bool

	resync    int64
	resyncing bool
	discard   int

	iterations int
	err        error
}

// Open decodes an Ogg Vorbis stream from r and wraps it in a Controller
func Open(r io.ReadSeeker, opts ...Option) (*Controller, error) {
	dec, err := decode.OpenVorbis(r)
	if err != nil {
		return nil, err
	}
	return New(dec, opts...)
}

// New creates a Controller positioned at the start of dec
func New(dec decode.Decoder, opts ...Option) (*Controller, error) {
	c := &Controller{
		dec:        dec,
		channels:   dec.Channels(),
		sampleRate: dec.SampleRate(),
		cur:        Position{Marker: MarkerUnknown},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", c.channels)
	}
	if c.sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", c.sampleRate)
	}

	if c.override != nil {
		if err := c.override.Validate(); err != nil {
			return nil, err
		}
		c.loop = *c.override
		c.status = LoopArmed
		return c, nil
	}

	loop, status, err := ParsePoints(dec.Metadata())
	if err != nil {
		return nil, err
	}
	c.loop = loop
	c.status = status
	return c, nil
}

// Pull fills out with whole frames and returns the number of frames written.
//
// At least one frame is returned per call unless an error is returned.
// io.EOF is returned once the stream ends without a loop; every error,
// including io.EOF, is terminal and repeated by later calls.
func (c *Controller) Pull(out []int16) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	ch := c.channels
	capacity := len(out) / ch
	if capacity == 0 {
		return 0, io.ErrShortBuffer
	}

	written := 0
	for written == 0 {
		if c.bufPos >= len(c.buf) {
			if err := c.refill(); err != nil {
				return 0, c.fail(err)
			}
		}

		if !c.hasStart && c.absPos == 0 {
			c.start = c.cur
			c.hasStart = true
		}

		for c.bufPos < len(c.buf) {
			if c.resyncing {
				if c.cur.Marker > c.resync {
					return 0, c.fail(fmt.Errorf("%w: at marker %d, want %d", ErrResyncOvershoot, c.cur.Marker, c.resync))
				}
				if c.cur.Marker != c.resync {
					c.bufPos += ch
					continue
				}
				c.resyncing = false
			}

			if c.discard > 0 {
				c.discard--
				c.bufPos += ch
				continue
			}

			if c.status == LoopArmed && c.absPos == c.loop.Start {
				c.captureOrigin()
			}

			if c.looping() && c.absPos == c.loop.End {
				break
			}

			if written == capacity {
				break
			}

			copy(out[written*ch:(written+1)*ch], c.buf[c.bufPos:c.bufPos+ch])
			c.bufPos += ch
			written++
			c.absPos++
		}

		if c.looping() && c.absPos == c.loop.End {
			if c.hasOrigin {
				if err := c.restart(); err != nil {
					return 0, c.fail(err)
				}
			} else {
				c.status = LoopUnavailable
				c.emit(Event{Kind: EventLoopUnavailable, AbsPos: c.absPos, Err: ErrLoopStartNotReached})
			}
		}
	}

	return written, nil
}

// refill decodes packets until a non-empty one is buffered
func (c *Controller) refill() error {
	for c.bufPos >= len(c.buf) {
		if c.hasNext {
			c.cur = c.next
		}

		samples, err := c.dec.NextPacket()
		if err != nil {
			c.hasNext = false
			return err
		}
		if len(samples)%c.channels != 0 {
			return fmt.Errorf("%w: %d samples for %d channels", ErrMisaligned, len(samples), c.channels)
		}

		// The marker of a packet is only known once it has been read
		marker := c.dec.LastMarker()
		frames := len(samples) / c.channels
		if marker == c.cur.Marker {
			c.next = Position{Marker: marker, Offset: c.cur.Offset + frames}
		} else {
			c.next = Position{Marker: marker}
		}
		c.hasNext = true

		c.buf = samples
		c.bufPos = 0
	}
	return nil
}

// fail records a terminal error
func (c *Controller) fail(err error) error {
	if errors.Is(err, io.EOF) {
		if c.status == LoopConfirmed {
			err = fmt.Errorf("%w: at frame %d, loop end %d", ErrUnexpectedEnd, c.absPos, c.loop.End)
		} else {
			err = io.EOF
			c.emit(Event{Kind: EventEnd, AbsPos: c.absPos, Iteration: c.iterations})
		}
	} else if !errors.Is(err, ErrResyncOvershoot) && !errors.Is(err, ErrMisaligned) {
		err = fmt.Errorf("decode: %w", err)
	}
	c.err = err
	c.buf = nil
	c.bufPos = 0
	return err
}

func (c *Controller) captureOrigin() {
	if c.cur.Marker == MarkerUnknown {
		// Nothing to seek back to
		c.status = LoopUnavailable
		c.emit(Event{Kind: EventLoopUnavailable, Position: c.cur, AbsPos: c.absPos, Err: ErrLoopStartInFirstPacket})
		return
	}

	c.origin = Position{
		Marker: c.cur.Marker,
		Offset: c.cur.Offset + c.bufPos/c.channels,
	}
	c.hasOrigin = true
	c.status = LoopConfirmed
	c.emit(Event{Kind: EventLoopFound, Position: c.origin, AbsPos: c.absPos})
}

// restart seeks back to the loop origin
func (c *Controller) restart() error {
	if c.maxLoops > 0 && c.iterations >= c.maxLoops {
		c.status = LoopExhausted
		c.emit(Event{Kind: EventLoopExhausted, Position: c.origin, AbsPos: c.absPos, Iteration: c.iterations})
		return nil
	}

	if err := c.dec.SeekToMarker(c.origin.Marker); err != nil {
		return fmt.Errorf("seek to loop start: %w", err)
	}

	// The decoder may land on an earlier packet; frames are dropped until
	// the origin marker is seen again, then origin.Offset more frames.
	c.cur = Position{Marker: MarkerUnknown}
	c.hasNext = false
	c.resync = c.origin.Marker
	c.resyncing = true
	c.discard = c.origin.Offset
	c.absPos = c.loop.Start
	c.buf = nil
	c.bufPos = 0
	c.iterations++

	c.emit(Event{Kind: EventLooping, Position: c.origin, AbsPos: c.absPos, Iteration: c.iterations})
	return nil
}

func (c *Controller) looping() bool {
	return c.status == LoopArmed || c.status == LoopConfirmed
}

func (c *Controller) emit(e Event) {
	if c.observer != nil {
		c.observer(e)
	}
}

// Channels returns the channel count of the decoded stream
func (c *Controller) Channels() int { return c.channels }

// SampleRate returns the sample rate of the decoded stream
func (c *Controller) SampleRate() int { return c.sampleRate }

// Loop returns the loop points and their current status
func (c *Controller) Loop() (Points, LoopStatus) { return c.loop, c.status }

// Origin returns the captured loop start position
func (c *Controller) Origin() (Position, bool) { return c.origin, c.hasOrigin }

// StartPosition returns the position of the first played frame
func (c *Controller) StartPosition() (Position, bool) { return c.start, c.hasStart }

// Iterations returns the number of seeks back to the loop start
func (c *Controller) Iterations() int { return c.iterations }

// AbsPosition returns the absolute frame index of the next frame
func (c *Controller) AbsPosition() int64 { return c.absPos }

// Err returns the terminal error, if any
func (c *Controller) Err() error { return c.err }

// Close closes the decoder
func (c *Controller) Close() error {
	return c.dec.Close()
}
