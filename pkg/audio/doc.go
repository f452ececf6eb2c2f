// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleFormat and sample conversion functions
// Package audio provides fundamental audio types shared by the playloop packages.
//
// This package defines:
//   - SampleFormat: the on-the-wire encoding of one sample (s16 or f32)
//   - Format: sample rate, channel count and sample format of an interleaved stream
//
// It also provides conversions between float and 16-bit samples and a
// checked reinterpretation of raw bytes as 16-bit samples, used only at
// the device boundary.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 44100,
//	    Channels:   2,
//	    Sample:     audio.FormatS16,
//	}
//
//	frameBytes := format.FrameSize() // 4
package audio
