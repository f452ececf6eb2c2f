// ABOUTME: Streaming bridge between the loop controller and a pull-based device
// ABOUTME: Converts fixed chunks into a scratch buffer and serves arbitrary read sizes from it
package stream

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
	"github.com/Resonate-Protocol/playloop/pkg/audio/convert"
)

// DefaultChunkFrames is the number of source frames pulled per refill
const DefaultChunkFrames = 4096

// Source produces interleaved int16 frames
type Source interface {
	// Pull fills out with whole frames and returns the frame count.
	// io.EOF marks the normal end of the stream.
	Pull(out []int16) (int, error)
	Channels() int
	SampleRate() int
}

// BridgeOption configures a Bridge
type BridgeOption func(*Bridge)

// WithChunkFrames sets the number of source frames pulled per refill
func WithChunkFrames(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.chunkFrames = n
		}
	}
}

// WithEndOfStream makes Read return io.EOF after the last converted byte
// instead of silence. Use it for sinks that are not real time.
func WithEndOfStream() BridgeOption {
	return func(b *Bridge) {
		b.eof = true
	}
}

type failure struct{ err error }

// Bridge adapts a Source to an io.Reader in the device format.
//
// Read is called from the device's pull goroutine only. Status, Frames and
// Err are safe to call from any goroutine.
type Bridge struct {
	src         Source
	conv        *convert.Converter
	chunkFrames int
	eof         bool
	pullBuf     []int16
	scratch     *Scratch

	status atomic.Int32
	frames atomic.Int64
	err    atomic.Pointer[failure]
}

// NewBridge creates a bridge from src to the dst device format. Call it on
// the goroutine that creates the device; the converter is owned by Read
// afterwards.
func NewBridge(src Source, dst audio.Format, opts ...BridgeOption) (*Bridge, error) {
	conv, err := convert.New(audio.Format{
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Sample:     audio.FormatS16,
	}, dst)
	if err != nil {
		return nil, fmt.Errorf("create converter: %w", err)
	}

	b := &Bridge{
		src:         src,
		conv:        conv,
		chunkFrames: DefaultChunkFrames,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.pullBuf = make([]int16, b.chunkFrames*src.Channels())
	b.scratch = NewScratch(conv.MaxOutputBytes(b.chunkFrames))
	return b, nil
}

// Read fills p completely. Once the source has ended or failed the rest of
// p, and every later read, is silence (or io.EOF with WithEndOfStream).
func (b *Bridge) Read(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if b.scratch.Len() == 0 {
			if b.Status().Done() {
				if b.eof {
					return written, io.EOF
				}
				clear(p[written:])
				return len(p), nil
			}
			b.refill()
			continue
		}
		written += b.scratch.Drain(p[written:])
	}
	return len(p), nil
}

func (b *Bridge) refill() {
	n, err := b.src.Pull(b.pullBuf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			b.status.Store(int32(Finished))
			return
		}
		b.err.Store(&failure{err: err})
		b.status.Store(int32(Failed))
		return
	}

	b.frames.Add(int64(n))
	samples := b.pullBuf[:n*b.src.Channels()]
	b.scratch.Refill(func(dst []byte) []byte {
		return b.conv.Append(dst, samples)
	})
}

// Status returns the current playback status
func (b *Bridge) Status() Status {
	return Status(b.status.Load())
}

// Frames returns the number of source frames pulled so far
func (b *Bridge) Frames() int64 {
	return b.frames.Load()
}

// Err returns the source error once the status is Failed
func (b *Bridge) Err() error {
	if f := b.err.Load(); f != nil {
		return f.err
	}
	return nil
}

// Format returns the device format produced by Read
func (b *Bridge) Format() audio.Format {
	return b.conv.Destination()
}

var _ io.Reader = (*Bridge)(nil)
