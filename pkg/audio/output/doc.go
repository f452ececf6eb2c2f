// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Device interface with oto and raw file backends
// Package output provides pull-based audio devices.
//
// Oto plays through the system audio device using github.com/ebitengine/oto/v3.
// File renders raw device-format bytes to a file, which is useful for offline
// rendering and tests.
//
// Example:
//
//	dev := output.NewOto(0)
//	err := dev.Open(audio.DefaultDevice, bridge)
//	err = dev.Start()
package output
