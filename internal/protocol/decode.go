package protocol

import "encoding/binary"

// ParseHeader reads the fixed header from the front of b. It does not check
// total_length against len(b); that belongs to the frame assembler.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrTruncatedPayload
	}
	h := Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		TotalLength: binary.BigEndian.Uint32(b[4:8]),
		Category:    Category(binary.BigEndian.Uint32(b[8:12])),
		Type:        Type(binary.BigEndian.Uint32(b[12:16])),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	return h, nil
}

// PeekTotalLength returns total_length once the first 8 bytes are available.
func PeekTotalLength(b []byte) (uint32, bool) {
	if len(b) < lengthOffset+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[lengthOffset : lengthOffset+4]), true
}

// Decoder reads payload fields in order. The read cursor only advances on
// success.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder wraps a header-stripped payload.
func NewDecoder(payload []byte) *Decoder {
	return &Decoder{buf: payload}
}

// Remaining returns the number of unread payload bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) Uint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrTruncatedPayload
	}
	v := binary.BigEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	return v, nil
}

// String reads a byte-length prefixed UTF-8 string.
func (d *Decoder) String() (string, error) {
	if d.Remaining() < 4 {
		return "", ErrTruncatedPayload
	}
	n := binary.BigEndian.Uint32(d.buf[d.off : d.off+4])
	if uint64(n) > uint64(d.Remaining()-4) {
		return "", ErrTruncatedPayload
	}
	start := d.off + 4
	end := start + int(n)
	s := string(d.buf[start:end])
	d.off = end
	return s, nil
}

// StringArray reads a count followed by that many strings.
func (d *Decoder) StringArray() ([]string, error) {
	start := d.off
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	// every element costs at least its 4-byte length
	if uint64(count)*4 > uint64(d.Remaining()) {
		d.off = start
		return nil, ErrTruncatedPayload
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := d.String()
		if err != nil {
			d.off = start
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
