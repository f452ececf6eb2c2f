// ABOUTME: Ogg container reader
// ABOUTME: Reassembles packets from pages and seeks with page granularity
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	errInvalidOggMagic   = errors.New("ogg: invalid capture pattern")
	errInvalidOggVersion = errors.New("ogg: unsupported version")

	// ErrNoOggStream is returned when the input holds no Ogg page
	ErrNoOggStream = errors.New("ogg: no logical stream found")

	// ErrGranuleNotFound is returned when seeking past the last page
	ErrGranuleNotFound = errors.New("ogg: granule position beyond end of stream")
)

// Page header type flags
const (
	pageContinued = 0x01
	pageBOS       = 0x02
	pageEOS       = 0x04
)

// noGranule marks a page on which no packet completes
const noGranule int64 = -1

// oggPageHeader represents the header of an Ogg page.
type oggPageHeader struct {
	Flags        byte
	GranulePos   int64
	SerialNumber uint32
	SequenceNum  uint32
	NumSegments  uint8
	SegmentTable []uint8
}

func (h *oggPageHeader) bodySize() int {
	n := 0
	for _, s := range h.SegmentTable {
		n += int(s)
	}
	return n
}

// parseOggPageHeader reads and parses an Ogg page header from the reader.
// Returns io.EOF if the reader is exhausted exactly at a page boundary.
func parseOggPageHeader(r io.Reader) (*oggPageHeader, error) {
	// Read fixed header (27 bytes)
	var buf [27]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	// Check capture pattern "OggS"
	if string(buf[0:4]) != "OggS" {
		return nil, errInvalidOggMagic
	}

	// Check version (must be 0)
	if buf[4] != 0 {
		return nil, errInvalidOggVersion
	}

	hdr := &oggPageHeader{
		Flags:        buf[5],
		GranulePos:   int64(binary.LittleEndian.Uint64(buf[6:14])),
		SerialNumber: binary.LittleEndian.Uint32(buf[14:18]),
		SequenceNum:  binary.LittleEndian.Uint32(buf[18:22]),
		// checksum at buf[22:26] is not validated
		NumSegments: buf[26],
	}

	if hdr.NumSegments > 0 {
		hdr.SegmentTable = make([]uint8, hdr.NumSegments)
		if _, err := io.ReadFull(r, hdr.SegmentTable); err != nil {
			return nil, noEOF(err)
		}
	}

	return hdr, nil
}

// noEOF turns a clean EOF inside a structure into io.ErrUnexpectedEOF
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// OggPacket is one reassembled packet
type OggPacket struct {
	Data []byte
	// Granule is the granule position of the page the packet completes on
	Granule int64
	// LastOnPage is set for the last packet completing on its page
	LastOnPage bool
	// EOS is set when the page carries the end-of-stream flag
	EOS bool
}

type pageEntry struct {
	offset  int64
	granule int64
	flags   byte
}

// OggReader reads packets of the first logical stream of an Ogg file.
//
// All page headers are indexed when the reader is created, so seeking only
// touches the page it lands on.
type OggReader struct {
	r      io.ReadSeeker
	serial uint32
	pages  []pageEntry

	// audioStart is the index of the first page after the codec headers
	audioStart int

	next     int // index of the next page to load
	page     *oggPageHeader
	body     []byte
	seg      int
	bodyPos  int
	packet   []byte
	inPacket bool
	skipping bool // dropping the tail of a packet that started before a seek
}

// NewOggReader indexes the pages of r starting at its current offset
func NewOggReader(r io.ReadSeeker) (*OggReader, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	o := &OggReader{r: r}
	if err := o.scan(start); err != nil {
		return nil, err
	}

	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	return o, nil
}

// scan builds the page index for the first logical stream
func (o *OggReader) scan(offset int64) error {
	found := false
	for {
		hdr, err := parseOggPageHeader(o.r)
		if errors.Is(err, io.EOF) || (found && errors.Is(err, io.ErrUnexpectedEOF)) {
			// A truncated trailing page ends the stream
			break
		}
		if err != nil {
			if !found && errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrNoOggStream
			}
			return err
		}

		size := hdr.bodySize()

		if !found {
			o.serial = hdr.SerialNumber
			found = true
		}
		if hdr.SerialNumber == o.serial {
			o.pages = append(o.pages, pageEntry{
				offset:  offset,
				granule: hdr.GranulePos,
				flags:   hdr.Flags,
			})
		}

		offset += 27 + int64(hdr.NumSegments) + int64(size)
		if _, err := o.r.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}

	if !found {
		return ErrNoOggStream
	}
	return nil
}

// Serial returns the serial number of the stream being read
func (o *OggReader) Serial() uint32 {
	return o.serial
}

// PageCount returns the number of indexed pages
func (o *OggReader) PageCount() int {
	return len(o.pages)
}

// LastGranule returns the granule position of the last page a packet completes on
func (o *OggReader) LastGranule() int64 {
	for i := len(o.pages) - 1; i >= 0; i-- {
		if o.pages[i].granule != noGranule {
			return o.pages[i].granule
		}
	}
	return 0
}

// loadPage reads the next indexed page
func (o *OggReader) loadPage() error {
	if o.next >= len(o.pages) {
		return io.EOF
	}

	entry := o.pages[o.next]
	if _, err := o.r.Seek(entry.offset, io.SeekStart); err != nil {
		return err
	}

	hdr, err := parseOggPageHeader(o.r)
	if err != nil {
		return noEOF(err)
	}

	size := hdr.bodySize()
	if cap(o.body) < size {
		o.body = make([]byte, size)
	}
	o.body = o.body[:size]
	if _, err := io.ReadFull(o.r, o.body); err != nil {
		return fmt.Errorf("ogg: read page %d body: %w", hdr.SequenceNum, noEOF(err))
	}

	o.next++
	o.page = hdr
	o.seg = 0
	o.bodyPos = 0

	if hdr.Flags&pageContinued != 0 {
		if !o.inPacket {
			o.skipping = true
		}
	} else if o.inPacket {
		// The previous packet never terminated; drop it
		o.inPacket = false
		o.packet = o.packet[:0]
	}
	return nil
}

// ReadPacket returns the next complete packet. The packet data is only
// valid until the next call. Returns io.EOF after the last packet.
func (o *OggReader) ReadPacket() (OggPacket, error) {
	for {
		if o.page == nil || o.seg >= len(o.page.SegmentTable) {
			if err := o.loadPage(); err != nil {
				return OggPacket{}, err
			}
			continue
		}

		size := int(o.page.SegmentTable[o.seg])
		data := o.body[o.bodyPos : o.bodyPos+size]
		o.seg++
		o.bodyPos += size

		if o.skipping {
			if size < 255 {
				o.skipping = false
			}
			continue
		}

		if !o.inPacket {
			o.packet = o.packet[:0]
			o.inPacket = true
		}
		o.packet = append(o.packet, data...)

		if size == 255 {
			// Packet continues in the next segment (possibly on the next page)
			continue
		}

		o.inPacket = false
		return OggPacket{
			Data:       o.packet,
			Granule:    o.page.GranulePos,
			LastOnPage: !o.completesLater(),
			EOS:        o.page.Flags&pageEOS != 0,
		}, nil
	}
}

// completesLater reports whether another packet completes on the current page
func (o *OggReader) completesLater() bool {
	for _, s := range o.page.SegmentTable[o.seg:] {
		if s < 255 {
			return true
		}
	}
	return false
}

// MarkAudioStart records that the codec headers have been consumed.
// Audio must begin on a fresh page.
func (o *OggReader) MarkAudioStart() error {
	if o.inPacket || (o.page != nil && o.seg < len(o.page.SegmentTable)) {
		return errors.New("ogg: audio data does not start on a page boundary")
	}
	o.audioStart = o.next
	return nil
}

func (o *OggReader) resetTo(page int) {
	o.next = page
	o.page = nil
	o.seg = 0
	o.bodyPos = 0
	o.packet = o.packet[:0]
	o.inPacket = false
	o.skipping = false
}

// SeekToGranule positions the reader at a packet boundary no later than
// the first packet completing on the first page whose granule is >= granule.
// When that packet starts on an earlier page the reader lands on that
// earlier page, so packets from before the target may be returned first.
// It never lands where the final page would be the first granule seen.
func (o *OggReader) SeekToGranule(granule int64) error {
	target := -1
	for i := o.audioStart; i < len(o.pages); i++ {
		if g := o.pages[i].granule; g != noGranule && g >= granule {
			target = i
			break
		}
	}
	if target < 0 {
		return fmt.Errorf("%w: %d", ErrGranuleNotFound, granule)
	}

	land := target
	if o.pages[target].flags&pageContinued != 0 && target > o.audioStart {
		// Walk back to the page where the spanning packet begins
		land = target - 1
		for land > o.audioStart && o.pages[land].granule == noGranule && o.pages[land].flags&pageContinued != 0 {
			land--
		}
	}

	// The reader must cross a page boundary with a granule before the
	// final page, or the end of the stream cannot be trimmed
	for land > o.audioStart && !o.observesGranule(land) {
		land--
	}

	o.resetTo(land)
	return nil
}

// observesGranule reports whether reading from page land returns the last
// packet of a page with a granule before the final page is reached
func (o *OggReader) observesGranule(land int) bool {
	last := len(o.pages) - 1
	first := -1
	for i := land; i < last; i++ {
		if o.pages[i].granule != noGranule {
			first = i
			break
		}
	}
	if first < 0 {
		return false
	}
	if o.pages[land].flags&pageContinued == 0 {
		return true
	}

	// The first completing packet may be the skipped tail
	for i := first + 1; i < last; i++ {
		if o.pages[i].granule != noGranule {
			return true
		}
	}
	return false
}

// AtAudioStart reports whether the next packet is the first audio packet
func (o *OggReader) AtAudioStart() bool {
	return o.page == nil && o.next == o.audioStart
}
