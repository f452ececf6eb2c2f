// ABOUTME: Format, sample-rate and channel-layout conversion for decoded audio
// ABOUTME: Turns interleaved int16 source frames into device-format bytes
package convert

import (
	"fmt"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
	"github.com/Resonate-Protocol/playloop/pkg/audio/resample"
)

// Converter converts interleaved int16 frames in the source format into bytes
// in the destination format.
//
// A Converter keeps resampler state between calls and must only be used by
// one goroutine; construct it on the goroutine that will call Append.
type Converter struct {
	src audio.Format
	dst audio.Format

	resampler *resample.Resampler // nil when rates match

	mixed     []int32
	resampled []int32
}

// New creates a converter from src to dst. Only src.SampleRate and
// src.Channels are used; source samples are always int16.
func New(src, dst audio.Format) (*Converter, error) {
	if src.SampleRate <= 0 || src.Channels <= 0 {
		return nil, fmt.Errorf("invalid source format: %v", src)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("invalid destination format: %w", err)
	}

	c := &Converter{src: src, dst: dst}
	if src.SampleRate != dst.SampleRate {
		c.resampler = resample.New(src.SampleRate, dst.SampleRate, dst.Channels)
	}
	return c, nil
}

// Destination returns the destination format
func (c *Converter) Destination() audio.Format { return c.dst }

// Append converts in (whole source frames) and appends the encoded result to dst.
// The number of bytes produced is not tied to len(in): resampling may hold
// back or emit an extra frame across calls.
func (c *Converter) Append(dst []byte, in []int16) []byte {
	frames := len(in) / c.src.Channels
	if frames == 0 {
		return dst
	}

	c.mixed = remix(c.mixed[:0], in[:frames*c.src.Channels], c.src.Channels, c.dst.Channels)

	samples := c.mixed
	if c.resampler != nil {
		need := c.resampler.OutputSamplesNeeded(len(c.mixed))
		if cap(c.resampled) < need {
			c.resampled = make([]int32, need)
		}
		c.resampled = c.resampled[:need]
		n := c.resampler.Resample(c.mixed, c.resampled)
		samples = c.resampled[:n]
	}

	switch c.dst.Sample {
	case audio.FormatF32:
		for _, s := range samples {
			dst = audio.AppendFloat32(dst, audio.Int16ToFloat32(int16(s)))
		}
	default:
		for _, s := range samples {
			dst = audio.AppendInt16(dst, int16(s))
		}
	}
	return dst
}

// MaxOutputBytes bounds the bytes Append produces for frames source frames
func (c *Converter) MaxOutputBytes(frames int) int {
	outFrames := frames
	if c.resampler != nil {
		outFrames = c.resampler.OutputSamplesNeeded(frames*c.dst.Channels) / c.dst.Channels
	}
	return outFrames * c.dst.FrameSize()
}

// remix maps interleaved frames from srcCh to dstCh channels
func remix(dst []int32, in []int16, srcCh, dstCh int) []int32 {
	frames := len(in) / srcCh

	for f := 0; f < frames; f++ {
		frame := in[f*srcCh : (f+1)*srcCh]

		switch {
		case srcCh == dstCh:
			for _, s := range frame {
				dst = append(dst, int32(s))
			}
		case dstCh == 1:
			dst = append(dst, mean(frame, 0, 1))
		case srcCh == 1:
			for c := 0; c < dstCh; c++ {
				dst = append(dst, int32(frame[0]))
			}
		case dstCh < srcCh:
			// Fold: output channel c averages c, c+dstCh, c+2*dstCh, ...
			for c := 0; c < dstCh; c++ {
				dst = append(dst, mean(frame, c, dstCh))
			}
		default:
			for c := 0; c < dstCh; c++ {
				dst = append(dst, int32(frame[c%srcCh]))
			}
		}
	}
	return dst
}

func mean(frame []int16, start, stride int) int32 {
	var sum, n int32
	for i := start; i < len(frame); i += stride {
		sum += int32(frame[i])
		n++
	}
	return sum / n
}
