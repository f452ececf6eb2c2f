// ABOUTME: Sample-accurate loop controller package
// ABOUTME: Maps absolute frame indices onto coarse decoder markers for seamless looping
// Package looper plays a decoded stream with a seamless loop.
//
// Loop points are absolute frame indices, usually read from the LOOPSTART
// and LOOPEND stream tags. Decoders can only seek to a coarse marker, so
// the controller records the marker and intra-marker offset of the loop
// start the first time it is played, and after each seek drops frames until
// that exact position is reached again.
//
// Example:
//
//	ctrl, err := looper.New(dec, looper.WithObserver(func(e looper.Event) {
//	    log.Println(e)
//	}))
//	buf := make([]int16, 4096*ctrl.Channels())
//	n, err := ctrl.Pull(buf) // n frames, io.EOF when finished
//
// A loop start that falls inside the very first decoded packet has no
// marker to seek back to. Looping is then disabled with an
// EventLoopUnavailable event and playback continues linearly.
package looper
