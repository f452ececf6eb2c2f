package looper

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"testing"

	"github.com/go-flac/flacvorbis"
	"github.com/jfreymuth/vorbis"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/playloop/pkg/audio"
)

// gobVorbis is the layout of testdata/mono.gob
type gobVorbis struct {
	Headers [3][]byte
	Packets [][]byte
}

const (
	oggContinued = 0x01
	oggBOS       = 0x02
	oggEOS       = 0x04

	// fixtureSegments keeps pages small so packets cross page boundaries
	fixtureSegments = 8
	// fixtureFrames is the length the encoder declared for the stream
	fixtureFrames = 44100
	// fixtureFinalPackets is the number of packets on the EOS page
	fixtureFinalPackets = 6
	// fixtureLongPacket is padded to cover at least one whole page
	fixtureLongPacket = 40
)

// vorbisFixture is a real Ogg Vorbis file paged from the packets in
// testdata/mono.gob. Some packets are zero padded so they span pages;
// the decoder ignores bytes past the end of a packet's bitstream.
type vorbisFixture struct {
	data []byte

	// frames is the declared length from the final granule
	frames int64
	// decoded is the length before the final page trims the padding
	decoded int64
	// pcm is a direct decode of the packets, trimmed to frames
	pcm []int16

	// spanStart is the first frame after the long packet
	spanStart int64
	// tailStart is the first frame tagged with the final granule
	tailStart int64
	// emptyPages counts pages on which no packet completes
	emptyPages int
}

var oggCRCTable = func() (table [256]uint32) {
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func oggCRC(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

// oggPager lays packets out on pages of at most fixtureSegments segments
type oggPager struct {
	buf      bytes.Buffer
	seq      uint32
	segs     []byte
	body     []byte
	granule  int64
	open     bool // a packet continues past the pending page
	cont     bool // the pending page starts with a continued packet
	emptyPgs int
}

func newOggPager() *oggPager {
	return &oggPager{granule: -1}
}

// add appends a packet that ends at granule
func (p *oggPager) add(packet []byte, granule int64) {
	for i := 0; ; i += 255 {
		n := min(len(packet)-i, 255)
		if len(p.segs) == fixtureSegments {
			p.open = i > 0
			p.flush(0)
		}
		p.segs = append(p.segs, byte(n))
		p.body = append(p.body, packet[i:i+n]...)
		if n < 255 {
			break
		}
	}
	p.open = false
	p.granule = granule
}

func (p *oggPager) flush(flags byte) {
	if len(p.segs) == 0 {
		return
	}
	if p.cont {
		flags |= oggContinued
	}
	if p.granule < 0 {
		p.emptyPgs++
	}

	page := make([]byte, 27, 27+len(p.segs)+len(p.body))
	copy(page, "OggS")
	page[5] = flags
	binary.LittleEndian.PutUint64(page[6:14], uint64(p.granule))
	binary.LittleEndian.PutUint32(page[14:18], 0x706c6179)
	binary.LittleEndian.PutUint32(page[18:22], p.seq)
	page[26] = byte(len(p.segs))
	page = append(page, p.segs...)
	page = append(page, p.body...)
	binary.LittleEndian.PutUint32(page[22:26], oggCRC(page))
	p.buf.Write(page)

	p.seq++
	p.segs = p.segs[:0]
	p.body = p.body[:0]
	p.granule = -1
	p.cont = p.open
}

func loadGobVorbis(t *testing.T) *gobVorbis {
	t.Helper()
	f, err := os.Open("testdata/mono.gob")
	require.NoError(t, err)
	defer f.Close()

	data := new(gobVorbis)
	require.NoError(t, gob.NewDecoder(f).Decode(data))
	return data
}

func commentHeader(t *testing.T, kv ...string) []byte {
	t.Helper()
	cmts := flacvorbis.New()
	cmts.Vendor = "Xiph.Org libVorbis I 20150105"
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, cmts.Add(kv[i], kv[i+1]))
	}
	packet := append([]byte{0x03}, "vorbis"...)
	packet = append(packet, cmts.Marshal().Data...)
	return append(packet, 0x01)
}

// padded returns the audio packets with some of them grown past 255 bytes
func padded(packets [][]byte) [][]byte {
	out := make([][]byte, len(packets))
	for i, pkt := range packets {
		size := len(pkt)
		switch {
		case i == fixtureLongPacket:
			size = 20 * 255
		case i%10 == 5 && len(pkt) > 1:
			size = 600
		}
		out[i] = make([]byte, max(size, len(pkt)))
		copy(out[i], pkt)
	}
	return out
}

// newVorbisFixture builds the stream with the given comment tags
func newVorbisFixture(t *testing.T, tags ...string) *vorbisFixture {
	t.Helper()
	src := loadGobVorbis(t)
	packets := padded(src.Packets)
	require.Greater(t, len(packets), fixtureLongPacket+fixtureFinalPackets+1)

	// Frame counts come from decoding the packets once
	var dec vorbis.Decoder
	for _, h := range src.Headers {
		require.NoError(t, dec.ReadHeader(h))
	}
	require.Equal(t, 1, dec.Channels())

	fx := &vorbisFixture{}
	ends := make([]int64, len(packets))
	starts := make([]int64, len(packets))
	for i, pkt := range packets {
		samples, err := dec.Decode(pkt)
		require.NoError(t, err)
		starts[i] = fx.decoded
		fx.decoded += int64(len(samples))
		ends[i] = fx.decoded
		for _, s := range samples {
			fx.pcm = append(fx.pcm, audio.Float32ToInt16(s))
		}
	}
	fx.frames = min(fx.decoded, fixtureFrames)
	fx.pcm = fx.pcm[:fx.frames]

	p := newOggPager()
	p.add(src.Headers[0], 0)
	p.flush(oggBOS)
	p.add(commentHeader(t, tags...), 0)
	p.add(src.Headers[2], 0)
	p.flush(0)
	headerEmpty := p.emptyPgs

	final := len(packets) - fixtureFinalPackets
	for i, pkt := range packets {
		if i == final {
			p.flush(0)
		}
		p.add(pkt, ends[i])
	}
	p.granule = fx.frames
	p.flush(oggEOS)

	fx.data = p.buf.Bytes()
	fx.spanStart = starts[fixtureLongPacket+1]
	fx.tailStart = starts[final+1]
	fx.emptyPages = p.emptyPgs - headerEmpty
	return fx
}
