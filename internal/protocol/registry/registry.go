// Package registry routes decoded frame headers to message decoders.
//
// A Registry is an explicit instance: build it at process start, hand it to the
// receive loop and to any extension call sites. Lookups and registrations may
// run concurrently; entries are never removed.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/danmuck/conswire/internal/protocol"
)

var (
	ErrCategoryNotExtendable = errors.New("registry: category decoder is not a type table")
	ErrNilDecoder            = errors.New("registry: nil decoder")
)

// DecodeFunc builds one concrete variant from a decoder positioned just after
// the type code.
type DecodeFunc func(d *protocol.Decoder) (protocol.Message, error)

// CategoryDecoder routes a type code inside one category.
type CategoryDecoder interface {
	DecodeType(typ protocol.Type, d *protocol.Decoder) (protocol.Message, error)
}

// CategoryDecoderFunc adapts a function to CategoryDecoder.
type CategoryDecoderFunc func(typ protocol.Type, d *protocol.Decoder) (protocol.Message, error)

func (f CategoryDecoderFunc) DecodeType(typ protocol.Type, d *protocol.Decoder) (protocol.Message, error) {
	return f(typ, d)
}

// Table is an immutable type code -> DecodeFunc map. With returns a copy, so a
// Table can be shared between goroutines without locking.
type Table struct {
	entries map[protocol.Type]DecodeFunc
}

func NewTable(entries map[protocol.Type]DecodeFunc) *Table {
	t := &Table{entries: make(map[protocol.Type]DecodeFunc, len(entries))}
	for typ, fn := range entries {
		if fn != nil {
			t.entries[typ] = fn
		}
	}
	return t
}

// With returns a copy of t with typ mapped to fn.
func (t *Table) With(typ protocol.Type, fn DecodeFunc) *Table {
	next := &Table{entries: make(map[protocol.Type]DecodeFunc, len(t.entries)+1)}
	maps.Copy(next.entries, t.entries)
	next.entries[typ] = fn
	return next
}

// Types returns the mapped type codes in ascending order.
func (t *Table) Types() []protocol.Type {
	return slices.Sorted(maps.Keys(t.entries))
}

func (t *Table) DecodeType(typ protocol.Type, d *protocol.Decoder) (protocol.Message, error) {
	fn, ok := t.entries[typ]
	if !ok {
		return nil, protocol.ErrUnknownType
	}
	return fn(d)
}

// Registry maps category codes to category decoders.
type Registry struct {
	mu         sync.RWMutex
	categories map[protocol.Category]CategoryDecoder
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{categories: make(map[protocol.Category]CategoryDecoder)}
}

// Register inserts or replaces the decoder for category.
func (r *Registry) Register(category protocol.Category, dec CategoryDecoder) error {
	if isNilDecoder(dec) {
		return ErrNilDecoder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[category] = dec
	return nil
}

// isNilDecoder also catches typed nils wrapped in the interface.
func isNilDecoder(dec CategoryDecoder) bool {
	switch d := dec.(type) {
	case nil:
		return true
	case *Table:
		return d == nil
	case CategoryDecoderFunc:
		return d == nil
	}
	return false
}

// RegisterType maps one (category, type) pair. The category gets a fresh Table
// when absent; a custom non-table decoder cannot be extended this way.
func (r *Registry) RegisterType(category protocol.Category, typ protocol.Type, fn DecodeFunc) error {
	if fn == nil {
		return ErrNilDecoder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch cur := r.categories[category].(type) {
	case nil:
		r.categories[category] = NewTable(map[protocol.Type]DecodeFunc{typ: fn})
	case *Table:
		r.categories[category] = cur.With(typ, fn)
	default:
		return fmt.Errorf("%w: category=%s", ErrCategoryNotExtendable, category)
	}
	return nil
}

// Lookup returns the decoder registered for category.
func (r *Registry) Lookup(category protocol.Category) (CategoryDecoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.categories[category]
	return dec, ok
}

// Categories returns the registered category codes in ascending order.
func (r *Registry) Categories() []protocol.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.categories))
}

// Decode turns one complete frame into a message. Failures wrap one of the
// protocol sentinels; once the header parses they are *protocol.DecodeError.
func (r *Registry) Decode(frame []byte) (protocol.Message, error) {
	h, err := protocol.ParseHeader(frame)
	if err != nil {
		return nil, fmt.Errorf("registry: decode header: %w", err)
	}
	if h.TotalLength < protocol.HeaderLen {
		return nil, decodeErr(h, protocol.ErrInvalidLength)
	}
	if uint64(len(frame)) < uint64(h.TotalLength) {
		return nil, decodeErr(h, protocol.ErrTruncatedPayload)
	}

	dec, ok := r.Lookup(h.Category)
	if !ok {
		return nil, decodeErr(h, protocol.ErrUnknownCategory)
	}
	msg, err := dec.DecodeType(h.Type, protocol.NewDecoder(frame[protocol.HeaderLen:h.TotalLength]))
	if err != nil {
		return nil, decodeErr(h, err)
	}
	if msg == nil {
		return nil, decodeErr(h, protocol.ErrUnknownType)
	}
	return msg, nil
}

func decodeErr(h protocol.Header, err error) error {
	return &protocol.DecodeError{Category: h.Category, Type: h.Type, Err: err}
}
