// ABOUTME: Entry point for the playloop player
// ABOUTME: Parses CLI flags, loads config and runs one looping playback session
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/playloop/internal/app"
	"github.com/Resonate-Protocol/playloop/internal/config"
	"github.com/Resonate-Protocol/playloop/internal/logging"
	"github.com/Resonate-Protocol/playloop/internal/ui"
	"github.com/Resonate-Protocol/playloop/internal/version"
	"github.com/Resonate-Protocol/playloop/pkg/looper"
)

// CLI flags. Negative or empty values leave the config file setting alone.
type CLI struct {
	File   string `arg:"" name:"file" help:"Ogg Vorbis file to play" type:"existingfile"`
	Config string `help:"Config file (default: XDG playloop/config.toml, then ./config.toml)" type:"path"`

	LoopStart int64 `help:"Loop start frame, overrides LOOPSTART (needs --loop-end)" default:"-1"`
	LoopEnd   int64 `help:"Loop end frame, overrides LOOPEND (needs --loop-start)" default:"-1"`
	MaxLoops  int   `help:"Stop looping after N iterations (0 loops forever)" default:"-1"`

	Rate     int    `help:"Device sample rate"`
	Channels int    `help:"Device channel count"`
	Format   string `help:"Device sample format: s16 or f32"`

	Backend string `help:"Output backend: oto or file"`
	Out     string `help:"Output path for the file backend" type:"path"`
	Frames  int64  `help:"Frames to render with the file backend (0 renders to the end)" default:"-1"`

	TUI      bool   `name:"tui" help:"Show the status view; logs go to the log file"`
	LogLevel string `help:"Log level (trace, debug, info, warn, error)"`
	LogJSON  bool   `name:"log-json" help:"Write logs as JSON"`
	LogFile  string `help:"Also write logs to this file" type:"path"`

	Version kong.VersionFlag `help:"Show version information"`
}

// apply overrides cfg with the flags that were set
func (c *CLI) apply(cfg *config.Config) {
	if c.LoopStart >= 0 {
		start := c.LoopStart
		cfg.Loop.Start = &start
	}
	if c.LoopEnd >= 0 {
		end := c.LoopEnd
		cfg.Loop.End = &end
	}
	if c.MaxLoops >= 0 {
		cfg.Loop.MaxLoops = c.MaxLoops
	}
	if c.Rate > 0 {
		cfg.Output.SampleRate = c.Rate
	}
	if c.Channels > 0 {
		cfg.Output.Channels = c.Channels
	}
	if c.Format != "" {
		cfg.Output.Format = c.Format
	}
	if c.Backend != "" {
		cfg.Output.Backend = c.Backend
	}
	if c.Out != "" {
		cfg.Output.Path = c.Out
		if c.Backend == "" {
			cfg.Output.Backend = config.BackendFile
		}
	}
	if c.Frames >= 0 {
		cfg.Output.Frames = c.Frames
	}
	if c.TUI {
		cfg.TUI = true
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogJSON {
		cfg.Log.JSON = true
	}
	if c.LogFile != "" {
		cfg.Log.File = c.LogFile
	}
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name(version.Product),
		kong.Description("Play an Ogg Vorbis file with seamless LOOPSTART/LOOPEND looping."),
		kong.Vars{"version": fmt.Sprintf("%s %s", version.Product, version.Version)},
		kong.UsageOnError(),
	)

	if err := run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", version.Product, err)
		os.Exit(1)
	}
}

func run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	cli.apply(cfg)

	logFile := cfg.Log.File
	if cfg.TUI && logFile == "" {
		logFile = config.DefaultLogFile()
	}
	closer, err := logging.Setup(logging.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		File:  logFile,
		Quiet: cfg.TUI,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	logrus.WithFields(logrus.Fields{
		"version":      version.Version,
		"manufacturer": version.Manufacturer,
	}).Infof("Starting %s", version.Product)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	tuiDone := make(chan struct{})

	if cfg.TUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		go func() {
			defer close(tuiDone)
			if _, err := tuiProg.Run(); err != nil {
				logrus.WithError(err).Error("TUI stopped")
			}
		}()
		defer func() {
			tuiProg.Quit()
			<-tuiDone
		}()
	}

	// Helper to update TUI
	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		var quit <-chan ui.QuitMsg
		if controls != nil {
			quit = controls.Quit
		}
		select {
		case <-quit:
			logrus.Info("Received quit signal from TUI")
		case <-sigChan:
			logrus.Info("Shutdown signal received")
		case <-ctx.Done():
			return
		}
		cancel()
	}()

	var out io.Writer = os.Stdout
	if cfg.TUI {
		out = io.Discard
	}

	player := app.New(app.Config{
		File:   cli.File,
		Config: cfg,
		Out:    out,
		OnStatus: func(s app.Status) {
			updateTUI(statusMsg(s))
		},
		OnEvent: func(e looper.Event) {
			updateTUI(ui.StatusMsg{Event: e.String()})
		},
	})

	return player.Run(ctx)
}

func statusMsg(s app.Status) ui.StatusMsg {
	msg := ui.StatusMsg{
		File:       s.File,
		Vendor:     s.Vendor,
		SampleRate: s.Source.SampleRate,
		Channels:   s.Source.Channels,
		Device:     s.Device.String(),
		Length:     s.Length,
		LoopState:  s.LoopStatus.String(),
		State:      s.State.String(),
		Stats:      true,
		Played:     s.Played,
		Frames:     s.Frames,
		Iterations: s.Iterations,
		Buffered:   s.Buffered,
		Dropped:    s.Dropped,
	}
	if s.LoopStatus != looper.LoopNone {
		msg.HasLoop = true
		msg.LoopStart = s.Loop.Start
		msg.LoopEnd = s.Loop.End
	}
	return msg
}
