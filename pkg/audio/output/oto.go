// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays a pull reader through the system audio device using oto
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
)

// oto only allows one context per process
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoErr    error
)

// Oto output implementation using oto library
type Oto struct {
	bufferSize time.Duration
	player     *oto.Player
	format     audio.Format
}

// NewOto creates a new Oto output. bufferSize is the device buffer
// duration; zero selects oto's default.
func NewOto(bufferSize time.Duration) *Oto {
	return &Oto{bufferSize: bufferSize}
}

// The audio package encodes samples little-endian on every host
func otoSampleFormat(f audio.SampleFormat) (oto.Format, error) {
	switch f {
	case audio.FormatS16:
		return oto.FormatSignedInt16LE, nil
	case audio.FormatF32:
		return oto.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("unsupported sample format %v", f)
	}
}

// Open initializes the output device and attaches r as the player source
func (o *Oto) Open(format audio.Format, r io.Reader) error {
	if err := format.Validate(); err != nil {
		return err
	}
	sf, err := otoSampleFormat(format.Sample)
	if err != nil {
		return err
	}

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       sf,
			BufferSize:   o.bufferSize,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan

		otoCtx = ctx
		otoFormat = format
		logrus.WithField("format", format).Info("Audio output initialized")
	})
	if otoErr != nil {
		return otoErr
	}

	// The context cannot be reinitialized with a different format
	if otoFormat != format {
		return fmt.Errorf("audio output already initialized as %v, cannot switch to %v", otoFormat, format)
	}

	if err := otoCtx.Resume(); err != nil {
		return fmt.Errorf("resume audio output: %w", err)
	}

	o.player = otoCtx.NewPlayer(r)
	o.format = format
	return nil
}

// Start begins playback
func (o *Oto) Start() error {
	if o.player == nil {
		return ErrNotOpen
	}
	o.player.Play()
	return nil
}

// Stop pauses playback
func (o *Oto) Stop() error {
	if o.player == nil {
		return ErrNotOpen
	}
	o.player.Pause()
	return nil
}

// IsPlaying reports whether the player is pulling
func (o *Oto) IsPlaying() bool {
	return o.player != nil && o.player.IsPlaying()
}

// Buffered returns the audio queued in the player
func (o *Oto) Buffered() time.Duration {
	if o.player == nil {
		return 0
	}
	frames := o.player.BufferedSize() / o.format.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(o.format.SampleRate)
}

// Err returns the player error
func (o *Oto) Err() error {
	if o.player == nil {
		return nil
	}
	return o.player.Err()
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	if serr := otoCtx.Suspend(); serr != nil && err == nil {
		err = serr
	}
	return err
}

var _ Device = (*Oto)(nil)
