package looper

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/playloop/pkg/audio/decode"
)

var errFakeDecode = errors.New("corrupt packet")

// fakeDecoder models the packet structure of a Vorbis stream: an empty first
// packet, output lengths set by alternating long and short blocks, several
// packets per page tagged with the page granule, and page-granular seeks
// after which the first packet only primes the decoder.
type fakeDecoder struct {
	channels int
	rate     int
	meta     decode.Metadata

	frames  []int   // output frames per packet
	starts  []int64 // absolute index of each packet's first frame
	markers []int64 // marker reported for each packet
	perPage int

	// coarse makes seeks land that many pages early (negative lands late)
	coarse  int
	priming bool

	next   int
	primed bool
	marker int64
	out    []int16

	landed     []int // packet index landed on by each seek
	errAt      int
	misalignAt int
	closed     bool
}

type fakeOption func(*fakeDecoder)

func withCoarse(pages int) fakeOption {
	return func(d *fakeDecoder) { d.coarse = pages }
}

// withFirstFrames makes the first packet produce output, as a decoder
// without a priming packet would
func withFirstFrames(n int) fakeOption {
	return func(d *fakeDecoder) { d.frames[0] = n }
}

func withoutPriming() fakeOption {
	return func(d *fakeDecoder) { d.priming = false }
}

func withTags(kv ...string) fakeOption {
	return func(d *fakeDecoder) {
		for i := 0; i+1 < len(kv); i += 2 {
			d.meta.Add(kv[i], kv[i+1])
		}
	}
}

func withErrorAt(packet int) fakeOption {
	return func(d *fakeDecoder) { d.errAt = packet }
}

func withMisalignedAt(packet int) fakeOption {
	return func(d *fakeDecoder) { d.misalignAt = packet }
}

func blockSize(i int) int {
	if i%7 == 3 || i%7 == 4 {
		return 256
	}
	return 2048
}

func newFakeDecoder(channels, pages int, opts ...fakeOption) *fakeDecoder {
	const perPage = 5
	n := pages * perPage

	d := &fakeDecoder{
		channels:   channels,
		rate:       44100,
		meta:       make(decode.Metadata),
		frames:     make([]int, n),
		perPage:    perPage,
		priming:    true,
		errAt:      -1,
		misalignAt: -1,
	}
	for i := 1; i < n; i++ {
		d.frames[i] = (blockSize(i-1) + blockSize(i)) / 4
	}
	for _, opt := range opts {
		opt(d)
	}

	d.starts = make([]int64, n)
	d.markers = make([]int64, n)
	var pos int64
	for i := range d.frames {
		d.starts[i] = pos
		pos += int64(d.frames[i])
	}
	for p := 0; p < pages; p++ {
		last := (p+1)*perPage - 1
		granule := d.starts[last] + int64(d.frames[last])
		for i := p * perPage; i <= last; i++ {
			d.markers[i] = granule
		}
	}
	return d
}

func sampleAt(frame int64, ch int) int16 {
	return int16((frame*31 + int64(ch)*7919) % 65521)
}

func (d *fakeDecoder) pages() int { return len(d.frames) / d.perPage }

func (d *fakeDecoder) pageMarker(p int) int64 { return d.markers[p*d.perPage] }

// totalFrames is the stream length
func (d *fakeDecoder) totalFrames() int64 {
	last := len(d.frames) - 1
	return d.starts[last] + int64(d.frames[last])
}

func (d *fakeDecoder) NextPacket() ([]int16, error) {
	if d.next >= len(d.frames) {
		return nil, io.EOF
	}
	i := d.next
	d.next++

	if i == d.errAt {
		return nil, errFakeDecode
	}

	d.marker = d.markers[i]
	d.out = d.out[:0]
	if d.primed {
		d.primed = false
		return d.out, nil
	}

	for f := 0; f < d.frames[i]; f++ {
		for ch := 0; ch < d.channels; ch++ {
			d.out = append(d.out, sampleAt(d.starts[i]+int64(f), ch))
		}
	}
	if i == d.misalignAt && len(d.out) > 0 {
		d.out = d.out[:len(d.out)-1]
	}
	return d.out, nil
}

func (d *fakeDecoder) LastMarker() int64 { return d.marker }

func (d *fakeDecoder) SeekToMarker(marker int64) error {
	page := -1
	for p := 0; p < d.pages(); p++ {
		if d.pageMarker(p) >= marker {
			page = p
			break
		}
	}
	if page < 0 {
		return fmt.Errorf("marker %d beyond end", marker)
	}

	land := min(max(page-d.coarse, 0), d.pages()-1)
	d.next = land * d.perPage
	d.primed = d.priming
	d.landed = append(d.landed, d.next)
	return nil
}

func (d *fakeDecoder) Channels() int             { return d.channels }
func (d *fakeDecoder) SampleRate() int           { return d.rate }
func (d *fakeDecoder) Metadata() decode.Metadata { return d.meta }

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

// reference decodes the stream end to end without the controller
func reference(d *fakeDecoder) []int16 {
	var out []int16
	for {
		samples, err := d.NextPacket()
		if err != nil {
			return out
		}
		out = append(out, samples...)
	}
}
