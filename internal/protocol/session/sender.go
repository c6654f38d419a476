package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/conswire/internal/observability"
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/messages"
)

// Sink is the write half of a transport.
type Sink interface {
	Write(b []byte) error
}

// Sender encodes messages and writes each frame whole.
type Sender struct {
	mu   sync.Mutex
	sink Sink
	role string
}

func NewSender(sink Sink, role string) *Sender {
	return &Sender{sink: sink, role: role}
}

func (s *Sender) Send(msg protocol.Message) error {
	b, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("session: encode %s/%d: %w", msg.Category(), uint32(msg.Type()), err)
	}
	return s.SendFrame(msg.Category(), msg.Type(), b)
}

// SendFrame writes an already encoded frame. Broadcasters encode once and
// fan the bytes out.
func (s *Sender) SendFrame(cat protocol.Category, typ protocol.Type, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sink.Write(b); err != nil {
		return fmt.Errorf("session: write %s/%d: %w", cat, uint32(typ), err)
	}
	observability.RecordSent(s.role, cat.String(), uint32(typ))
	return nil
}

// RunHeartbeats sends a heartbeat every interval until ctx is done or a write
// fails. A non-positive interval disables the loop.
func RunHeartbeats(ctx context.Context, s *Sender, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	msg := messages.NewHeartbeat()
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SendFrame(msg.Category(), msg.Type(), b); err != nil {
				return err
			}
		}
	}
}
