// ABOUTME: Audio decoder package for the Ogg Vorbis codec
// ABOUTME: Provides the Decoder interface, an Ogg page reader and a Vorbis decoder
// Package decode provides the packet-level decoder used by the loop controller.
//
// The Decoder interface exposes decoded packets together with a coarse
// position marker, which is what the loop controller needs to seek and
// resynchronise with sample accuracy.
//
// OggReader demultiplexes Ogg pages into packets and supports page-granular
// seeking by granule position. Vorbis decodes those packets with
// github.com/jfreymuth/vorbis.
//
// Example:
//
//	dec, err := decode.OpenVorbis(f)
//	samples, err := dec.NextPacket()
//	marker := dec.LastMarker()
package decode
