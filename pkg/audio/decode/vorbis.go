// ABOUTME: Ogg Vorbis decoder
// ABOUTME: Decodes Vorbis packets to int16 and reports granule markers for seeking
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
	"github.com/jfreymuth/vorbis"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
)

var (
	errInvalidVorbisHeader = errors.New("vorbis: invalid header packet")

	// ErrNotVorbis is returned when the first logical stream is not Vorbis
	ErrNotVorbis = errors.New("vorbis: stream is not vorbis")
)

// Vorbis header packet types
const (
	vorbisIdent   = 0x01
	vorbisComment = 0x03
	vorbisSetup   = 0x05
)

const unknownPosition int64 = -1

// Vorbis decodes an Ogg Vorbis stream packet by packet.
type Vorbis struct {
	ogg    *OggReader
	closer io.Closer
	dec    vorbis.Decoder

	channels   int
	sampleRate int
	vendor     string
	meta       Metadata

	marker int64
	// pos is the stream position after the last returned packet; it is
	// unknown after a seek until a page boundary is crossed
	pos int64

	out []int16
}

// Open opens and decodes the Ogg Vorbis file at path
func Open(path string) (*Vorbis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	v, err := OpenVorbis(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	v.closer = f
	return v, nil
}

// OpenVorbis reads the three Vorbis headers from r
func OpenVorbis(r io.ReadSeeker) (*Vorbis, error) {
	ogr, err := NewOggReader(r)
	if err != nil {
		return nil, err
	}

	v := &Vorbis{ogg: ogr, meta: make(Metadata)}

	ident, err := v.readHeader(vorbisIdent)
	if err != nil {
		return nil, err
	}
	v.channels, v.sampleRate, err = parseVorbisIdent(ident)
	if err != nil {
		return nil, err
	}

	comment, err := v.readHeader(vorbisComment)
	if err != nil {
		return nil, err
	}
	v.vendor, err = parseVorbisComment(comment, v.meta)
	if err != nil {
		return nil, err
	}

	if _, err := v.readHeader(vorbisSetup); err != nil {
		return nil, err
	}

	if err := ogr.MarkAudioStart(); err != nil {
		return nil, err
	}

	return v, nil
}

// readHeader reads the next packet, checks its type and feeds it to the decoder
func (v *Vorbis) readHeader(kind byte) ([]byte, error) {
	pkt, err := v.ogg.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("vorbis: read header %#x: %w", kind, noEOF(err))
	}

	if !isVorbisHeader(pkt.Data, kind) {
		if kind == vorbisIdent {
			return nil, ErrNotVorbis
		}
		return nil, fmt.Errorf("%w: expected type %#x", errInvalidVorbisHeader, kind)
	}

	// Store a copy; the ogg reader reuses its packet buffer
	header := make([]byte, len(pkt.Data))
	copy(header, pkt.Data)

	if err := v.dec.ReadHeader(header); err != nil {
		return nil, fmt.Errorf("vorbis: header %#x: %w", kind, err)
	}
	return header, nil
}

func isVorbisHeader(packet []byte, kind byte) bool {
	return len(packet) >= 7 && packet[0] == kind && string(packet[1:7]) == "vorbis"
}

// parseVorbisIdent extracts the channel count and sample rate.
func parseVorbisIdent(packet []byte) (channels, sampleRate int, err error) {
	// Vorbis identification header format:
	// [0]      = packet type (0x01)
	// [1:7]    = "vorbis"
	// [7:11]   = version (must be 0)
	// [11]     = channels
	// [12:16]  = sample rate (little-endian)
	if len(packet) < 16 || !isVorbisHeader(packet, vorbisIdent) {
		return 0, 0, errInvalidVorbisHeader
	}

	if binary.LittleEndian.Uint32(packet[7:11]) != 0 {
		return 0, 0, errInvalidVorbisHeader
	}

	channels = int(packet[11])
	sampleRate = int(binary.LittleEndian.Uint32(packet[12:16]))
	if channels == 0 || sampleRate == 0 {
		return 0, 0, errInvalidVorbisHeader
	}
	return channels, sampleRate, nil
}

// parseVorbisComment fills meta from a comment header and returns the vendor.
// The comment body has the same layout as a FLAC VORBIS_COMMENT block.
func parseVorbisComment(packet []byte, meta Metadata) (string, error) {
	if !isVorbisHeader(packet, vorbisComment) {
		return "", errInvalidVorbisHeader
	}

	block, err := flacvorbis.ParseFromMetaDataBlock(flac.MetaDataBlock{
		Type: flac.VorbisComment,
		Data: packet[7:],
	})
	if err != nil {
		return "", fmt.Errorf("vorbis: comment header: %w", err)
	}

	for _, c := range block.Comments {
		key, value, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		meta.Add(key, value)
	}
	return block.Vendor, nil
}

// NextPacket decodes the next audio packet
func (v *Vorbis) NextPacket() ([]int16, error) {
	pkt, err := v.ogg.ReadPacket()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("vorbis: %w", err)
	}

	var samples []float32
	if len(pkt.Data) > 0 {
		samples, err = v.dec.Decode(pkt.Data)
		if err != nil {
			return nil, fmt.Errorf("vorbis: decode packet: %w", err)
		}
	}

	frames := len(samples) / v.channels
	if pkt.Granule != noGranule {
		v.marker = pkt.Granule
	}

	if pkt.LastOnPage && pkt.Granule != noGranule {
		// The final page's granule may cut the last packet short
		if pkt.EOS && v.pos != unknownPosition {
			if remain := pkt.Granule - v.pos; remain < int64(frames) {
				frames = int(max(remain, 0))
			}
		}
		v.pos = pkt.Granule
	} else if v.pos != unknownPosition {
		v.pos += int64(frames)
	}

	n := frames * v.channels
	if cap(v.out) < n {
		v.out = make([]int16, n)
	}
	v.out = v.out[:n]
	for i, s := range samples[:n] {
		v.out[i] = audio.Float32ToInt16(s)
	}
	return v.out, nil
}

// LastMarker returns the granule position of the page the last packet completed on
func (v *Vorbis) LastMarker() int64 {
	return v.marker
}

// SeekToMarker seeks to the page holding the first packet with granule >= marker
func (v *Vorbis) SeekToMarker(marker int64) error {
	if err := v.ogg.SeekToGranule(marker); err != nil {
		return fmt.Errorf("vorbis: seek to %d: %w", marker, err)
	}
	v.dec.Clear()
	v.pos = unknownPosition
	if v.ogg.AtAudioStart() {
		v.pos = 0
	}
	return nil
}

// Channels returns the channel count from the identification header
func (v *Vorbis) Channels() int {
	return v.channels
}

// SampleRate returns the sample rate from the identification header
func (v *Vorbis) SampleRate() int {
	return v.sampleRate
}

// Metadata returns the comment header tags
func (v *Vorbis) Metadata() Metadata {
	return v.meta
}

// Vendor returns the encoder vendor string
func (v *Vorbis) Vendor() string {
	return v.vendor
}

// TotalFrames returns the stream length in frames as declared by the last page
func (v *Vorbis) TotalFrames() int64 {
	return v.ogg.LastGranule()
}

// Close closes the underlying file when opened with Open
func (v *Vorbis) Close() error {
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

var _ Decoder = (*Vorbis)(nil)
