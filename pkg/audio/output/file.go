// ABOUTME: Raw file audio output
// ABOUTME: Pulls device-format bytes on a goroutine and writes them to a file or writer
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
)

// DefaultPeriodFrames is the number of frames pulled per read
const DefaultPeriodFrames = 1024

// FileOption configures a File device
type FileOption func(*File)

// WithFrameLimit stops the device after n frames; zero means no limit
func WithFrameLimit(n int64) FileOption {
	return func(f *File) { f.limit = n }
}

// WithPacing makes the device pull in real time instead of as fast as possible
func WithPacing(paced bool) FileOption {
	return func(f *File) { f.paced = paced }
}

// WithPeriod sets the number of frames requested per read
func WithPeriod(frames int) FileOption {
	return func(f *File) {
		if frames > 0 {
			f.period = frames
		}
	}
}

// File writes raw interleaved samples in the device format.
// The device stops by itself at the frame limit or when the reader
// returns io.EOF.
type File struct {
	path   string
	w      io.Writer
	limit  int64
	paced  bool
	period int

	file   *os.File
	bw     *bufio.Writer
	reader io.Reader
	format audio.Format

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	playing atomic.Bool
	frames  atomic.Int64
	err     atomic.Pointer[failure]
}

type failure struct{ err error }

// NewFile creates a device that writes to path, truncating it on Open
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, period: DefaultPeriodFrames}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewWriter creates a device that writes to w
func NewWriter(w io.Writer, opts ...FileOption) *File {
	f := NewFile("", opts...)
	f.w = w
	return f
}

// Open creates the output file and attaches the reader
func (f *File) Open(format audio.Format, r io.Reader) error {
	if err := format.Validate(); err != nil {
		return err
	}

	w := f.w
	if w == nil {
		file, err := os.Create(f.path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		f.file = file
		w = file
	}

	f.bw = bufio.NewWriter(w)
	f.reader = r
	f.format = format
	return nil
}

// Start launches the pull goroutine
func (f *File) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		return ErrNotOpen
	}
	if f.playing.Load() {
		return nil
	}

	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	f.playing.Store(true)
	go f.run(f.stop, f.done)
	return nil
}

func (f *File) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer f.playing.Store(false)

	frameSize := f.format.FrameSize()
	buf := make([]byte, f.period*frameSize)
	interval := time.Duration(f.period) * time.Second / time.Duration(f.format.SampleRate)

	var tick <-chan time.Time
	if f.paced {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		want := f.period
		if f.limit > 0 {
			remaining := f.limit - f.frames.Load()
			if remaining <= 0 {
				logrus.WithField("frames", f.frames.Load()).Debug("File output reached frame limit")
				return
			}
			want = int(min(int64(want), remaining))
		}

		n, err := io.ReadFull(f.reader, buf[:want*frameSize])
		if n > 0 {
			if _, werr := f.bw.Write(buf[:n]); werr != nil {
				f.err.Store(&failure{err: fmt.Errorf("write output: %w", werr)})
				return
			}
			f.frames.Add(int64(n / frameSize))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				f.err.Store(&failure{err: fmt.Errorf("read source: %w", err)})
			}
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-stop:
				return
			}
		}
	}
}

// Stop ends the pull goroutine and waits for it
func (f *File) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stop == nil {
		return nil
	}
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	<-f.done
	return nil
}

// IsPlaying reports whether the pull goroutine is running
func (f *File) IsPlaying() bool {
	return f.playing.Load()
}

// Buffered is always zero; bytes are written as soon as they are read
func (f *File) Buffered() time.Duration {
	return 0
}

// Frames returns the number of frames written
func (f *File) Frames() int64 {
	return f.frames.Load()
}

// Err returns the first write or read error
func (f *File) Err() error {
	if e := f.err.Load(); e != nil {
		return e.err
	}
	return nil
}

// Close stops the device, flushes and closes the file
func (f *File) Close() error {
	if err := f.Stop(); err != nil {
		return err
	}

	var err error
	if f.bw != nil {
		err = f.bw.Flush()
	}
	if f.file != nil {
		if cerr := f.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		f.file = nil
	}
	return err
}

var _ Device = (*File)(nil)
