// ABOUTME: Playback session orchestration
// ABOUTME: Wires decoder, loop controller, bridge and audio device and supervises playback
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/playloop/internal/config"
	"github.com/Resonate-Protocol/playloop/pkg/audio"
	"github.com/Resonate-Protocol/playloop/pkg/audio/decode"
	"github.com/Resonate-Protocol/playloop/pkg/audio/output"
	"github.com/Resonate-Protocol/playloop/pkg/looper"
	"github.com/Resonate-Protocol/playloop/pkg/stream"
)

// eventBuffer is the number of loop events held for the control goroutine.
// Events beyond it are counted and dropped; the audio goroutine never blocks.
const eventBuffer = 64

// maxDrainWait bounds how long a finished session waits for queued audio
const maxDrainWait = 2 * time.Second

// Config holds session configuration
type Config struct {
	File   string
	Config *config.Config

	// Out receives the human-readable status lines
	Out io.Writer

	// OnStatus is called from the control goroutine after every poll
	OnStatus func(Status)
	// OnEvent is called from the control goroutine for every loop event
	OnEvent func(looper.Event)
}

// Status is a snapshot of the session for display
type Status struct {
	SessionID  string
	File       string
	Vendor     string
	Source     audio.Format
	Device     audio.Format
	Length     int64 // declared stream length in frames, zero when unknown
	Loop       looper.Points
	LoopStatus looper.LoopStatus
	State      stream.Status
	Frames     int64
	Played     time.Duration
	Iterations int
	Buffered   time.Duration
	Dropped    int64
}

// Player plays one file through one device
type Player struct {
	config Config
	id     string
	log    *logrus.Entry

	open      func(path string) (decode.Decoder, error)
	newDevice func(cfg *config.Config) output.Device

	events     chan looper.Event
	iterations atomic.Int64
	dropped    atomic.Int64

	status Status
}

// New creates a session. Nothing is opened until Run.
func New(cfg Config) *Player {
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	id := uuid.New().String()
	return &Player{
		config:    cfg,
		id:        id,
		log:       logrus.WithFields(logrus.Fields{"session": id, "file": cfg.File}),
		open:      func(path string) (decode.Decoder, error) { return decode.Open(path) },
		newDevice: newDevice,
		events:    make(chan looper.Event, eventBuffer),
	}
}

// ID returns the session id
func (p *Player) ID() string {
	return p.id
}

func newDevice(cfg *config.Config) output.Device {
	if cfg.Output.Backend == config.BackendFile {
		return output.NewFile(cfg.Output.Path, output.WithFrameLimit(cfg.Output.Frames))
	}
	return output.NewOto(cfg.Output.BufferSize)
}

// Run plays the file until it ends, fails or ctx is cancelled. A
// cancelled context is not an error.
func (p *Player) Run(ctx context.Context) error {
	cfg := p.config.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	devFormat, err := cfg.DeviceFormat()
	if err != nil {
		return err
	}

	dec, err := p.open(p.config.File)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.config.File, err)
	}

	opts := []looper.Option{
		looper.WithMaxLoops(cfg.Loop.MaxLoops),
		looper.WithObserver(p.observe),
	}
	if points, ok, err := cfg.LoopOverride(); ok {
		if err != nil {
			_ = dec.Close()
			return err
		}
		opts = append(opts, looper.WithLoop(points))
	}

	ctrl, err := looper.New(dec, opts...)
	if err != nil {
		_ = dec.Close()
		return fmt.Errorf("loop controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			p.log.WithError(err).Warn("Failed to close decoder")
		}
	}()

	p.status = Status{
		SessionID: p.id,
		File:      p.config.File,
		Source:    audio.Format{SampleRate: ctrl.SampleRate(), Channels: ctrl.Channels(), Sample: audio.FormatS16},
		Device:    devFormat,
	}
	if v, ok := dec.(interface{ Vendor() string }); ok {
		p.status.Vendor = v.Vendor()
	}
	if v, ok := dec.(interface{ TotalFrames() int64 }); ok {
		p.status.Length = v.TotalFrames()
	}
	p.status.Loop, p.status.LoopStatus = ctrl.Loop()
	p.printLoopInfo(dec.Metadata())
	p.checkLoopEnd()

	bridgeOpts := []stream.BridgeOption{stream.WithChunkFrames(cfg.Playback.ChunkFrames)}
	if cfg.Output.Backend == config.BackendFile {
		bridgeOpts = append(bridgeOpts, stream.WithEndOfStream())
	}
	bridge, err := stream.NewBridge(ctrl, devFormat, bridgeOpts...)
	if err != nil {
		return err
	}

	dev := p.newDevice(cfg)
	if err := dev.Open(devFormat, bridge); err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			p.log.WithError(err).Warn("Failed to close output")
		}
	}()

	p.log.WithFields(logrus.Fields{
		"source":  p.status.Source,
		"device":  devFormat,
		"backend": cfg.Output.Backend,
		"loop":    p.status.LoopStatus,
	}).Info("Starting playback")

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start output: %w", err)
	}
	p.println("Playing...")

	err = p.supervise(ctx, bridge, dev)

	if stopErr := dev.Stop(); stopErr != nil && !errors.Is(stopErr, output.ErrNotOpen) {
		p.log.WithError(stopErr).Warn("Failed to stop output")
	}
	p.drainEvents()
	p.publish(bridge, dev)

	p.log.WithFields(logrus.Fields{
		"frames":     bridge.Frames(),
		"iterations": p.iterations.Load(),
		"dropped":    p.dropped.Load(),
	}).Info("Playback stopped")

	return err
}

// supervise polls the bridge and device until playback is over
func (p *Player) supervise(ctx context.Context, bridge *stream.Bridge, dev output.Device) error {
	ticker := time.NewTicker(p.config.Config.Playback.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Playback interrupted")
			return nil
		case <-ticker.C:
		}

		p.drainEvents()
		p.publish(bridge, dev)

		switch bridge.Status() {
		case stream.Failed:
			return fmt.Errorf("playback: %w", bridge.Err())
		case stream.Finished:
			p.waitDrained(ctx, dev)
			return dev.Err()
		}

		if err := dev.Err(); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if !dev.IsPlaying() {
			// The device stopped on its own, e.g. a file render hit its frame limit
			p.log.Debug("Output stopped")
			return nil
		}
	}
}

// waitDrained lets the device play out what it already holds
func (p *Player) waitDrained(ctx context.Context, dev output.Device) {
	wait := min(dev.Buffered(), maxDrainWait)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// observe runs on the audio goroutine
func (p *Player) observe(e looper.Event) {
	if e.Kind == looper.EventLooping {
		p.iterations.Store(int64(e.Iteration))
	}
	select {
	case p.events <- e:
	default:
		p.dropped.Add(1)
	}
}

func (p *Player) drainEvents() {
	for {
		select {
		case e := <-p.events:
			p.handleEvent(e)
		default:
			return
		}
	}
}

func (p *Player) handleEvent(e looper.Event) {
	entry := p.log.WithFields(logrus.Fields{
		"event":     e.Kind,
		"position":  e.Position,
		"frame":     e.AbsPos,
		"iteration": e.Iteration,
	})
	switch e.Kind {
	case looper.EventLoopUnavailable:
		p.status.LoopStatus = looper.LoopUnavailable
		entry.WithError(e.Err).Warn("Looping disabled")
	case looper.EventLoopFound:
		p.status.LoopStatus = looper.LoopConfirmed
		entry.Debug("Loop start captured")
	case looper.EventLoopExhausted:
		p.status.LoopStatus = looper.LoopExhausted
		entry.Info("Loop limit reached")
	default:
		entry.Debug("Loop event")
	}

	p.println(e.String())
	if p.config.OnEvent != nil {
		p.config.OnEvent(e)
	}
}

func (p *Player) publish(bridge *stream.Bridge, dev output.Device) {
	p.status.State = bridge.Status()
	p.status.Frames = bridge.Frames()
	p.status.Played = time.Duration(p.status.Frames) * time.Second / time.Duration(p.status.Source.SampleRate)
	p.status.Buffered = dev.Buffered()
	p.status.Dropped = p.dropped.Load()
	if n := int(p.iterations.Load()); n > p.status.Iterations {
		p.status.Iterations = n
	}
	if p.config.OnStatus != nil {
		p.config.OnStatus(p.status)
	}
}

func (p *Player) printLoopInfo(meta decode.Metadata) {
	switch p.status.LoopStatus {
	case looper.LoopNone:
		p.println("No loop information")
	case looper.LoopIncomplete:
		if _, ok := meta.Get(looper.TagLoopStart); ok {
			p.println("LOOPSTART set but not LOOPEND")
		} else {
			p.println("LOOPEND set but not LOOPSTART")
		}
	default:
		p.println(fmt.Sprintf("Loop: start=%d end=%d", p.status.Loop.Start, p.status.Loop.End))
	}
}

// checkLoopEnd warns when the loop end lies beyond the declared length;
// playback would then fail once the stream runs out
func (p *Player) checkLoopEnd() {
	length := p.status.Length
	if p.status.LoopStatus != looper.LoopArmed || length <= 0 || p.status.Loop.End <= length {
		return
	}
	p.log.WithFields(logrus.Fields{
		"loop_end": p.status.Loop.End,
		"length":   length,
	}).Warn("Loop end is past the end of the stream")
	p.println(fmt.Sprintf("Loop end %d is past the end of the stream (%d frames)", p.status.Loop.End, length))
}

func (p *Player) println(line string) {
	fmt.Fprintln(p.config.Out, line)
}
