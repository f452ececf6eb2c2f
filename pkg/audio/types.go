// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats, stream formats and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// SampleFormat identifies the encoding of a single sample on the wire
type SampleFormat int

const (
	// FormatS16 is signed 16-bit little-endian
	FormatS16 SampleFormat = iota
	// FormatF32 is 32-bit IEEE float little-endian in [-1, 1]
	FormatF32
)

// Size returns the number of bytes per sample
func (f SampleFormat) Size() int {
	switch f {
	case FormatF32:
		return 4
	default:
		return 2
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16"
	case FormatF32:
		return "f32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// ParseSampleFormat parses "s16" or "f32"
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s16", "":
		return FormatS16, nil
	case "f32":
		return FormatF32, nil
	default:
		return 0, fmt.Errorf("unsupported sample format: %q (supported: s16, f32)", s)
	}
}

// Format describes an interleaved PCM stream
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// DefaultDevice is the device format requested when nothing else is configured
var DefaultDevice = Format{SampleRate: 44100, Channels: 2, Sample: FormatS16}

// FrameSize returns the number of bytes in one frame (one sample per channel)
func (f Format) FrameSize() int {
	return f.Channels * f.Sample.Size()
}

// Validate checks that the format can be used for playback
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.Sample != FormatS16 && f.Sample != FormatF32 {
		return fmt.Errorf("invalid sample format: %v", f.Sample)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Sample)
}

// Float32ToInt16 converts a float sample in [-1, 1] to int16, clamping out of range input
func Float32ToInt16(sample float32) int16 {
	v := math.Round(float64(sample) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Int16ToFloat32 converts an int16 sample to a float in [-1, 1)
func Int16ToFloat32(sample int16) float32 {
	return float32(sample) / 32768
}

// Int16sFromBytes decodes S16 bytes into samples.
// The input must hold a whole number of samples.
func Int16sFromBytes(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("byte length %d is not a multiple of the sample size", len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out, nil
}

// AppendInt16 appends an S16 sample
func AppendInt16(dst []byte, sample int16) []byte {
	return binary.LittleEndian.AppendUint16(dst, uint16(sample))
}

// AppendFloat32 appends an F32 sample
func AppendFloat32(dst []byte, sample float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(sample))
}
