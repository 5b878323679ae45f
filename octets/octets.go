// Package octets implements the variable-length integer, float, string and
// tagged record encoding used for stored record values and wire messages.
package octets

import "fmt"

// ErrUnderflow is returned when a decode operation needs more bytes than are
// available.
var ErrUnderflow = fmt.Errorf("octets: underflow")

// ErrBadFormat is returned when a decode operation encounters a reserved or
// otherwise illegal tag, kind or flag byte.
var ErrBadFormat = fmt.Errorf("octets: bad format")

// Octets is an owned, growable byte buffer with a read cursor (pos) and a
// write/read limit.
type Octets struct {
	buf   []byte
	pos   int
	limit int
}

// New returns an empty Octets ready for writing.
func New() *Octets {
	return &Octets{buf: make([]byte, 0, 16)}
}

// Wrap returns an Octets for reading the given bytes; pos starts at 0 and
// limit at len(b). The slice is not copied.
func Wrap(b []byte) *Octets {
	return &Octets{buf: b, limit: len(b)}
}

// Bytes returns the written (or remaining, when wrapping) region of the buffer.
func (o *Octets) Bytes() []byte {
	return o.buf[:o.limit]
}

// Remaining returns the bytes not yet consumed by the read cursor.
func (o *Octets) Remaining() []byte {
	return o.buf[o.pos:o.limit]
}

// Pos returns the current read cursor.
func (o *Octets) Pos() int { return o.pos }

// Len returns the number of bytes written.
func (o *Octets) Len() int { return o.limit }

func (o *Octets) grow(n int) {
	if o.limit+n > len(o.buf) {
		nb := make([]byte, o.limit, (o.limit+n)*2+16)
		copy(nb, o.buf[:o.limit])
		o.buf = nb
	}
}

func (o *Octets) put(b ...byte) {
	o.grow(len(b))
	o.buf = append(o.buf[:o.limit], b...)
	o.limit += len(b)
}

func (o *Octets) need(n int) error {
	if o.pos+n > o.limit {
		return ErrUnderflow
	}
	return nil
}

func (o *Octets) take(n int) []byte {
	b := o.buf[o.pos : o.pos+n]
	o.pos += n
	return b
}

// Reset clears the buffer for reuse as a fresh writer.
func (o *Octets) Reset() {
	o.buf = o.buf[:0]
	o.pos = 0
	o.limit = 0
}

// Marshal1 appends a single raw byte, used for the record value format byte.
func (o *Octets) Marshal1(b byte) {
	o.put(b)
}

// Unmarshal1 reads a single raw byte.
func (o *Octets) Unmarshal1() (byte, error) {
	return o.readByte()
}
