// ABOUTME: Configuration loading for playloop
// ABOUTME: Reads TOML config files through koanf and validates the result
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
	"github.com/Resonate-Protocol/playloop/pkg/looper"
	"github.com/Resonate-Protocol/playloop/pkg/stream"
)

const appName = "playloop"

// Backend names
const (
	BackendOto  = "oto"
	BackendFile = "file"
)

type Config struct {
	Loop     LoopConfig     `koanf:"loop"`
	Output   OutputConfig   `koanf:"output"`
	Playback PlaybackConfig `koanf:"playback"`
	Log      LogConfig      `koanf:"log"`

	// TUI shows the bubbletea status view instead of plain lines
	TUI bool `koanf:"tui"`
}

// LoopConfig overrides the LOOPSTART and LOOPEND tags when both are set.
type LoopConfig struct {
	Start    *int64 `koanf:"start"`
	End      *int64 `koanf:"end"`
	MaxLoops int    `koanf:"max_loops"` // 0 loops forever
}

// OutputConfig selects the audio device and its format.
type OutputConfig struct {
	Backend    string        `koanf:"backend"` // "oto" or "file"
	SampleRate int           `koanf:"sample_rate"`
	Channels   int           `koanf:"channels"`
	Format     string        `koanf:"format"` // "s16" or "f32"
	Path       string        `koanf:"path"`   // file backend output
	Frames     int64         `koanf:"frames"` // file backend frame limit, 0 renders to the end
	BufferSize time.Duration `koanf:"buffer_size"`
}

type PlaybackConfig struct {
	ChunkFrames  int           `koanf:"chunk_frames"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
	File  string `koanf:"file"`
}

// Default returns the configuration used when no file sets a value
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Backend:    BackendOto,
			SampleRate: audio.DefaultDevice.SampleRate,
			Channels:   audio.DefaultDevice.Channels,
			Format:     audio.DefaultDevice.Sample.String(),
		},
		Playback: PlaybackConfig{
			ChunkFrames:  stream.DefaultChunkFrames,
			PollInterval: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path, or the default config locations when path is empty.
// A missing default file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		return load([]string{path})
	}
	return load(getConfigPaths())
}

func load(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Later paths win
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Output.Backend = strings.ToLower(strings.TrimSpace(cfg.Output.Backend))
	cfg.Output.Path = expandPath(cfg.Output.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. $XDG_CONFIG_HOME/playloop/config.toml (or the first XDG config dir that has one)
	if path, err := xdg.SearchConfigFile(filepath.Join(appName, "config.toml")); err == nil {
		paths = append(paths, path)
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// DefaultLogFile is where logs go when the TUI owns the terminal
func DefaultLogFile() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}

// Validate checks the combined file and flag settings
func (c *Config) Validate() error {
	switch c.Output.Backend {
	case BackendOto:
	case BackendFile:
		if c.Output.Path == "" {
			return errors.New("file backend requires an output path")
		}
	default:
		return fmt.Errorf("unknown backend %q (supported: %s, %s)", c.Output.Backend, BackendOto, BackendFile)
	}

	if _, err := c.DeviceFormat(); err != nil {
		return err
	}
	if c.Output.Frames < 0 {
		return fmt.Errorf("invalid frame limit: %d", c.Output.Frames)
	}
	if c.Loop.MaxLoops < 0 {
		return fmt.Errorf("invalid max loops: %d", c.Loop.MaxLoops)
	}
	if c.Playback.ChunkFrames <= 0 {
		return fmt.Errorf("invalid chunk frames: %d", c.Playback.ChunkFrames)
	}
	if c.Playback.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.Playback.PollInterval)
	}

	if _, ok, err := c.LoopOverride(); ok && err != nil {
		return err
	}
	return nil
}

// DeviceFormat returns the requested device format
func (c *Config) DeviceFormat() (audio.Format, error) {
	sample, err := audio.ParseSampleFormat(c.Output.Format)
	if err != nil {
		return audio.Format{}, err
	}
	f := audio.Format{
		SampleRate: c.Output.SampleRate,
		Channels:   c.Output.Channels,
		Sample:     sample,
	}
	if err := f.Validate(); err != nil {
		return audio.Format{}, err
	}
	return f, nil
}

// LoopOverride returns the configured loop points. ok is false unless both
// start and end are set; a single value is reported as an error.
func (c *Config) LoopOverride() (looper.Points, bool, error) {
	switch {
	case c.Loop.Start != nil && c.Loop.End != nil:
		p := looper.Points{Start: *c.Loop.Start, End: *c.Loop.End}
		return p, true, p.Validate()
	case c.Loop.Start != nil || c.Loop.End != nil:
		return looper.Points{}, true, errors.New("loop override needs both start and end")
	default:
		return looper.Points{}, false, nil
	}
}
