// Package transport supplies raw bytes to the receive loop and accepts raw
// bytes to send. Handshake and TLS details stay inside this package; the
// protocol layer only sees chunks.
package transport

import (
	"context"
	"errors"
)

var (
	ErrClosed            = errors.New("transport: connection closed")
	ErrNotConnected      = errors.New("transport: not connected")
	ErrAlreadyConnected  = errors.New("transport: already connected")
	ErrAddressRequired   = errors.New("transport: address required")
	ErrUnsupportedScheme = errors.New("transport: unsupported url scheme")
)

// Transport is the byte channel consumed by the protocol core.
//
// ReadChunk never blocks: it returns whatever bytes are available, possibly
// none. An empty result means "nothing yet", never end of stream; closure is
// reported as an error matching ErrClosed.
type Transport interface {
	Connect(ctx context.Context) error
	SecureConnect(ctx context.Context) error
	ReadChunk() ([]byte, error)
	Write(b []byte) error
	Disconnect() error
}

// Open connects t, over TLS when secure is set.
func Open(ctx context.Context, t Transport, secure bool) error {
	if secure {
		return t.SecureConnect(ctx)
	}
	return t.Connect(ctx)
}
