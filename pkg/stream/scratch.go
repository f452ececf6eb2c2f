// ABOUTME: Scratch buffer for converted bytes awaiting delivery
// ABOUTME: Logical length is tracked separately from capacity and drained with a compact-left copy
package stream

// Scratch holds converted bytes that have not been delivered yet.
type Scratch struct {
	buf []byte
	n   int
}

// NewScratch creates a scratch buffer with the given capacity
func NewScratch(capacity int) *Scratch {
	return &Scratch{buf: make([]byte, capacity)}
}

// Len returns the number of undelivered bytes
func (s *Scratch) Len() int { return s.n }

// Cap returns the buffer capacity
func (s *Scratch) Cap() int { return len(s.buf) }

// Bytes returns the undelivered bytes. Valid until the next Drain or Refill.
func (s *Scratch) Bytes() []byte { return s.buf[:s.n] }

// Refill replaces the contents with what fill appends to an empty slice of
// the buffer. If fill outgrows the capacity the larger buffer is kept.
func (s *Scratch) Refill(fill func(dst []byte) []byte) {
	out := fill(s.buf[:0])
	if cap(out) > len(s.buf) {
		s.buf = out[:cap(out)]
	}
	s.n = len(out)
}

// Drain copies up to len(p) bytes into p and shifts the rest to the front
func (s *Scratch) Drain(p []byte) int {
	n := copy(p, s.buf[:s.n])
	copy(s.buf, s.buf[n:s.n])
	s.n -= n
	return n
}
