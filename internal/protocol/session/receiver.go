package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/conswire/internal/logging"
	"github.com/danmuck/conswire/internal/observability"
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/frame"
	"github.com/danmuck/conswire/internal/protocol/registry"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrNilHandler = errors.New("session: nil handler")

// Source is the read half of a transport.
type Source interface {
	ReadChunk() ([]byte, error)
}

// Handler receives every decoded message in stream order. A non-nil error
// stops the receive loop.
type Handler interface {
	HandleMessage(ctx context.Context, msg protocol.Message) error
}

type HandlerFunc func(ctx context.Context, msg protocol.Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg protocol.Message) error {
	return f(ctx, msg)
}

// Stats is a snapshot of receiver counters.
type Stats struct {
	Bytes   uint64
	Frames  uint64
	Skipped uint64
}

// Receiver runs the single receive pipeline for one connection.
type Receiver struct {
	src     Source
	reg     *registry.Registry
	handler Handler
	cfg     Config
	waiter  Waiter
	logger  zerolog.Logger
	warn    rate.Sometimes

	bytes   atomic.Uint64
	frames  atomic.Uint64
	skipped atomic.Uint64
}

// NewReceiver binds src to reg and h. Sources implementing Notifier are
// waited on event-driven; others are polled with backoff.
func NewReceiver(src Source, reg *registry.Registry, h Handler, cfg Config) *Receiver {
	cfg = cfg.WithDefaults()
	r := &Receiver{
		src:     src,
		reg:     reg,
		handler: h,
		cfg:     cfg,
		logger:  logging.Component("session").With().Str("role", cfg.Role).Logger(),
		warn:    rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	if n, ok := src.(Notifier); ok {
		r.waiter = NewNotifyWaiter(n, cfg.Poll)
	} else {
		r.waiter = NewBackoffWaiter(cfg.Poll)
	}
	return r
}

// SetWaiter replaces the wait strategy. Call before Run.
func (r *Receiver) SetWaiter(w Waiter) {
	if w != nil {
		r.waiter = w
	}
}

func (r *Receiver) Stats() Stats {
	return Stats{
		Bytes:   r.bytes.Load(),
		Frames:  r.frames.Load(),
		Skipped: r.skipped.Load(),
	}
}

// Run reads until ctx is done or a fatal error occurs. Unknown type codes are
// logged and skipped; every other decode failure, a framing error or a
// transport error ends the loop with that error wrapped. Cancellation returns
// ctx.Err().
func (r *Receiver) Run(ctx context.Context) error {
	if r.handler == nil {
		return ErrNilHandler
	}
	asm := frame.NewAssembler(frame.Limits{MaxFrameBytes: r.cfg.MaxFrameBytes})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := r.src.ReadChunk()
		if err != nil {
			r.logger.Debug().Err(err).Msg("transport read ended")
			return fmt.Errorf("session: read chunk: %w", err)
		}
		if len(chunk) == 0 {
			if err := r.waiter.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		r.waiter.Reset()
		r.bytes.Add(uint64(len(chunk)))
		observability.RecordBytes(r.cfg.Role, len(chunk))

		if err := asm.Write(chunk); err != nil {
			return r.framingFailure(err)
		}
		for f, err := range asm.Frames() {
			if err != nil {
				return r.framingFailure(err)
			}
			if err := r.dispatch(ctx, f); err != nil {
				return err
			}
		}
	}
}

func (r *Receiver) dispatch(ctx context.Context, f []byte) error {
	msg, err := r.reg.Decode(f)
	if err != nil {
		kind := protocol.Kind(err)
		observability.RecordDecodeError(r.cfg.Role, kind)
		if protocol.Recoverable(err) || (r.cfg.SkipCorruptFrames && errors.Is(err, protocol.ErrTruncatedPayload)) {
			r.skipped.Add(1)
			r.warn.Do(func() {
				r.logger.Warn().Err(err).Str("kind", kind).Int("bytes", len(f)).Msg("skipping frame")
			})
			return nil
		}
		r.logger.Error().Err(err).Str("kind", kind).Msg("fatal decode error")
		return fmt.Errorf("session: decode frame: %w", err)
	}

	r.frames.Add(1)
	observability.RecordFrame(r.cfg.Role, msg.Category().String(), uint32(msg.Type()))
	if err := r.handler.HandleMessage(ctx, msg); err != nil {
		return fmt.Errorf("session: handle %s/%d: %w", msg.Category(), uint32(msg.Type()), err)
	}
	return nil
}

func (r *Receiver) framingFailure(err error) error {
	kind := protocol.Kind(err)
	observability.RecordDecodeError(r.cfg.Role, kind)
	r.logger.Error().Err(err).Str("kind", kind).Msg("framing error")
	return fmt.Errorf("session: assemble frame: %w", err)
}
