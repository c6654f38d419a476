package protocol

import (
	"encoding/binary"
	"math"
)

// Encoder builds one frame. It starts with the header already written and
// total_length zeroed; Finish patches the length.
type Encoder struct {
	buf      []byte
	err      error
	finished bool
}

// Begin writes magic, a zero total_length placeholder, category and type.
func Begin(category Category, typ Type) *Encoder {
	e := &Encoder{buf: make([]byte, 0, 64)}
	e.PutUint32(Magic)
	e.PutUint32(0)
	e.PutUint32(uint32(category))
	e.PutUint32(uint32(typ))
	return e
}

// Len returns the number of bytes written so far, header included.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// PutString writes the UTF-8 byte length followed by the bytes of s.
func (e *Encoder) PutString(s string) {
	if uint64(len(s)) > math.MaxUint32 {
		e.fail(ErrFieldTooLarge)
		return
	}
	e.PutUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PutStringArray writes the element count followed by each string.
func (e *Encoder) PutStringArray(values []string) {
	if uint64(len(values)) > math.MaxUint32 {
		e.fail(ErrFieldTooLarge)
		return
	}
	e.PutUint32(uint32(len(values)))
	for _, s := range values {
		e.PutString(s)
	}
}

// Finish stores the final frame size at offset 4 and returns the frame.
// It must be called once, after the last payload write.
func (e *Encoder) Finish() ([]byte, error) {
	if e.finished {
		return nil, ErrEncoderFinished
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	if uint64(len(e.buf)) > math.MaxUint32 {
		return nil, ErrFrameTooLarge
	}
	binary.BigEndian.PutUint32(e.buf[lengthOffset:lengthOffset+4], uint32(len(e.buf)))
	return e.buf, nil
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
