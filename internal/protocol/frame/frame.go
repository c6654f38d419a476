// Package frame reassembles discrete frames from an arbitrarily chunked byte
// stream. An Assembler is owned by a single receive loop and is not safe for
// concurrent use.
package frame

import (
	"fmt"
	"iter"

	"github.com/danmuck/conswire/internal/protocol"
)

// Limits constrains assembler memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 8 * 1024 * 1024,
	}
}

// Assembler buffers stream bytes and cuts complete frames off the front.
type Assembler struct {
	limits Limits
	buf    []byte
	err    error
}

func NewAssembler(limits Limits) *Assembler {
	if limits.MaxFrameBytes < protocol.HeaderLen {
		limits = DefaultLimits()
	}
	return &Assembler{limits: limits}
}

// Buffered returns the number of bytes held for frames not yet complete.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Err returns the latched framing error, if any.
func (a *Assembler) Err() error {
	return a.err
}

// Reset drops buffered bytes and any latched error, e.g. after a reconnect.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.err = nil
}

// Write appends one chunk. An empty chunk is a no-op.
func (a *Assembler) Write(chunk []byte) error {
	if a.err != nil {
		return a.err
	}
	if len(chunk) == 0 {
		return nil
	}
	if err := a.checkPrefix(chunk); err != nil {
		return err
	}
	a.buf = append(a.buf, chunk...)
	return a.checkLength()
}

// checkPrefix validates the front frame's total_length before chunk is
// appended, when buffer and chunk together complete the length field.
func (a *Assembler) checkPrefix(chunk []byte) error {
	const prefixLen = 8
	if len(a.buf) >= prefixLen || len(a.buf)+len(chunk) < prefixLen {
		return nil
	}
	var prefix [prefixLen]byte
	n := copy(prefix[:], a.buf)
	copy(prefix[n:], chunk)
	total, _ := protocol.PeekTotalLength(prefix[:])
	return a.validate(total)
}

// Next cuts the next complete frame from the buffer. ok is false when more
// bytes are needed. The returned frame is a copy owned by the caller.
func (a *Assembler) Next() (frame []byte, ok bool, err error) {
	if err := a.checkLength(); err != nil {
		return nil, false, err
	}
	if len(a.buf) < protocol.HeaderLen {
		return nil, false, nil
	}
	total, _ := protocol.PeekTotalLength(a.buf)
	n := int(total)
	if len(a.buf) < n {
		return nil, false, nil
	}
	frame = make([]byte, n)
	copy(frame, a.buf[:n])
	rest := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:rest]
	return frame, true, nil
}

// Frames yields every complete frame currently buffered, in order. Iteration
// stops after the first error.
func (a *Assembler) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			f, ok, err := a.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Feed writes chunk and drains every frame it completes.
func (a *Assembler) Feed(chunk []byte) ([][]byte, error) {
	if err := a.Write(chunk); err != nil {
		return nil, err
	}
	var out [][]byte
	for f, err := range a.Frames() {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

// checkLength validates total_length of the frame at the front of the buffer
// as soon as its 8 leading bytes are present.
func (a *Assembler) checkLength() error {
	if a.err != nil {
		return a.err
	}
	total, ok := protocol.PeekTotalLength(a.buf)
	if !ok {
		return nil
	}
	return a.validate(total)
}

// validate latches an error for a bad total_length and releases the buffer.
// Frames ahead of the bad one have already been cut.
func (a *Assembler) validate(total uint32) error {
	switch {
	case total > a.limits.MaxFrameBytes:
		a.err = fmt.Errorf("%w: total_length=%d max=%d", protocol.ErrFrameTooLarge, total, a.limits.MaxFrameBytes)
	case total < protocol.HeaderLen:
		a.err = fmt.Errorf("%w: total_length=%d", protocol.ErrInvalidLength, total)
	default:
		return nil
	}
	a.buf = nil
	return a.err
}
