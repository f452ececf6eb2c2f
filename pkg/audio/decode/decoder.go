// ABOUTME: Decoder interface definition
// ABOUTME: Packet-oriented contract between the loop controller and a bitstream decoder
package decode

import "strings"

// Decoder produces successive packets of interleaved decoded samples.
//
// Each packet is tagged with a coarse position marker (for Ogg, the granule
// position of the page the packet completes on). Markers never decrease
// while reading forward. Seeking is only possible to marker granularity.
type Decoder interface {
	// NextPacket decodes the next packet. Packets may legitimately be empty.
	// Returns io.EOF at the end of the stream. The returned slice is only
	// valid until the next call.
	NextPacket() ([]int16, error)

	// LastMarker returns the marker of the most recently decoded packet
	LastMarker() int64

	// SeekToMarker repositions the decoder so that reading resumes at a
	// packet boundary no later than the first packet tagged with marker.
	// It may land earlier than requested.
	SeekToMarker(marker int64) error

	// Channels returns the declared channel count
	Channels() int

	// SampleRate returns the declared sample rate
	SampleRate() int

	// Metadata returns the stream-level key/value metadata
	Metadata() Metadata

	// Close releases decoder resources
	Close() error
}

// Metadata holds stream tags. Keys are stored upper-case; a key may repeat.
type Metadata map[string][]string

// Add appends a value for key
func (m Metadata) Add(key, value string) {
	k := strings.ToUpper(key)
	m[k] = append(m[k], value)
}

// Get returns the first value for key (case-insensitive)
func (m Metadata) Get(key string) (string, bool) {
	values := m[strings.ToUpper(key)]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}
