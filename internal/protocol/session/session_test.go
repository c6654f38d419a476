package session

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/messages"
	"github.com/danmuck/conswire/internal/testutil/testlog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errEOF = errors.New("fake: eof")

type step struct {
	data []byte
	err  error
}

// scriptSource replays steps, then reports nothing forever.
type scriptSource struct {
	mu    sync.Mutex
	steps []step
	reads int
}

func (s *scriptSource) ReadChunk() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.steps) == 0 {
		return nil, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.data, st.err
}

type collector struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (c *collector) HandleMessage(_ context.Context, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) rendered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.(interface{ String() string }).String())
	}
	return out
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Poll = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	return cfg
}

func encode(t *testing.T, m protocol.Message) []byte {
	t.Helper()
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func rawFrame(magic uint32, cat protocol.Category, typ protocol.Type, payload []byte) []byte {
	b := make([]byte, protocol.HeaderLen+len(payload))
	binary.BigEndian.PutUint32(b[0:4], magic)
	binary.BigEndian.PutUint32(b[4:8], uint32(len(b)))
	binary.BigEndian.PutUint32(b[8:12], uint32(cat))
	binary.BigEndian.PutUint32(b[12:16], uint32(typ))
	copy(b[16:], payload)
	return b
}

func runWith(t *testing.T, src Source, cfg Config) (*collector, *Receiver, error) {
	t.Helper()
	c := &collector{}
	r := NewReceiver(src, messages.NewRegistry(), c, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c, r, r.Run(ctx)
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffWaiterRestartsAfterReset(t *testing.T) {
	testlog.Start(t)
	w := NewBackoffWaiter(BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 40 * time.Millisecond})
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond}
	for i, d := range want {
		if got := w.next(); got != d {
			t.Fatalf("empty read %d: got=%v want=%v", i+1, got, d)
		}
	}
	w.Reset()
	if got := w.next(); got != 10*time.Millisecond {
		t.Fatalf("after reset got=%v want=%v", got, 10*time.Millisecond)
	}
}

func TestReceiverDeliversChunkedFramesInOrder(t *testing.T) {
	testlog.Start(t)
	stream := append(encode(t, messages.NewHeartbeat()), encode(t, messages.NewReadOnly("SYS", "BOOT OK"))...)
	var steps []step
	for _, b := range stream {
		steps = append(steps, step{}, step{data: []byte{b}})
	}
	steps = append(steps, step{err: errEOF})

	c, r, err := runWith(t, &scriptSource{steps: steps}, fastConfig())
	if !errors.Is(err, errEOF) {
		t.Fatalf("expected transport error, got %v", err)
	}
	got := c.rendered()
	if len(got) != 2 || got[0] != "heartbeat" || got[1] != ">>SYS*BOOT OK" {
		t.Fatalf("unexpected messages %q", got)
	}
	st := r.Stats()
	if st.Frames != 2 || st.Skipped != 0 || st.Bytes != uint64(len(stream)) {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestReceiverSkipsUnknownType(t *testing.T) {
	testlog.Start(t)
	chunk := append(rawFrame(protocol.Magic, protocol.CategoryConsole, protocol.TypeReset, nil),
		encode(t, messages.NewReadOnly("", "after"))...)
	src := &scriptSource{steps: []step{{data: chunk}, {err: errEOF}}}

	c, r, err := runWith(t, src, fastConfig())
	if !errors.Is(err, errEOF) {
		t.Fatalf("expected loop to continue to transport error, got %v", err)
	}
	if got := c.rendered(); len(got) != 1 || got[0] != ">>after" {
		t.Fatalf("unexpected messages %q", got)
	}
	if st := r.Stats(); st.Skipped != 1 || st.Frames != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestReceiverFatalErrors(t *testing.T) {
	testlog.Start(t)
	truncated, err := func() ([]byte, error) {
		e := protocol.Begin(protocol.CategoryConsole, protocol.TypeReadOnly)
		e.PutUint32(100)
		return e.Finish()
	}()
	if err != nil {
		t.Fatalf("build truncated frame: %v", err)
	}
	tooLarge := rawFrame(protocol.Magic, protocol.CategorySystem, protocol.TypeHeartbeat, nil)
	binary.BigEndian.PutUint32(tooLarge[4:8], 1<<30)

	cases := []struct {
		name  string
		chunk []byte
		want  error
	}{
		{"bad magic", rawFrame(1234, protocol.CategorySystem, protocol.TypeHeartbeat, nil), protocol.ErrBadMagic},
		{"unknown category", rawFrame(protocol.Magic, 9, 1, nil), protocol.ErrUnknownCategory},
		{"too large", tooLarge[:8], protocol.ErrFrameTooLarge},
		{"truncated payload", truncated, protocol.ErrTruncatedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			after := encode(t, messages.NewHeartbeat())
			src := &scriptSource{steps: []step{{data: tc.chunk}, {data: after}, {err: errEOF}}}
			c, _, err := runWith(t, src, fastConfig())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(c.rendered()) != 0 {
				t.Fatalf("no message should be delivered after a fatal error")
			}
		})
	}
}

func TestReceiverSkipCorruptFrames(t *testing.T) {
	testlog.Start(t)
	e := protocol.Begin(protocol.CategoryConsole, protocol.TypeReadOnly)
	e.PutUint32(100)
	truncated, err := e.Finish()
	if err != nil {
		t.Fatalf("build truncated frame: %v", err)
	}
	src := &scriptSource{steps: []step{{data: truncated}, {data: encode(t, messages.NewHeartbeat())}, {err: errEOF}}}
	cfg := fastConfig()
	cfg.SkipCorruptFrames = true

	c, r, err := runWith(t, src, cfg)
	if !errors.Is(err, errEOF) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := c.rendered(); len(got) != 1 || got[0] != "heartbeat" {
		t.Fatalf("unexpected messages %q", got)
	}
	if r.Stats().Skipped != 1 {
		t.Fatalf("expected one skipped frame")
	}
}

func TestReceiverStopsPromptlyOnCancel(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Poll = BackoffConfig{InitialDelay: time.Hour, Multiplier: 1}
	r := NewReceiver(&scriptSource{}, messages.NewRegistry(), &collector{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("receiver did not stop after cancel")
	}
}

func TestReceiverHandlerErrorStops(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("handler boom")
	src := &scriptSource{steps: []step{{data: encode(t, messages.NewHeartbeat())}}}
	r := NewReceiver(src, messages.NewRegistry(), HandlerFunc(func(context.Context, protocol.Message) error {
		return boom
	}), fastConfig())
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestReceiverRequiresHandler(t *testing.T) {
	testlog.Start(t)
	r := NewReceiver(&scriptSource{}, messages.NewRegistry(), nil, fastConfig())
	if err := r.Run(context.Background()); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

type readySource struct {
	scriptSource
	ready chan struct{}
}

func (s *readySource) Ready() <-chan struct{} { return s.ready }

func TestNotifyWaiterWakesOnReady(t *testing.T) {
	testlog.Start(t)
	src := &readySource{ready: make(chan struct{}, 1)}
	w := NewNotifyWaiter(src, BackoffConfig{InitialDelay: time.Hour, Multiplier: 1})
	src.ready <- struct{}{}

	start := time.Now()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("notify waiter ignored ready signal")
	}
}

func TestReceiverUsesNotifier(t *testing.T) {
	testlog.Start(t)
	src := &readySource{ready: make(chan struct{}, 1)}
	cfg := DefaultConfig()
	cfg.Poll = BackoffConfig{InitialDelay: time.Hour, Multiplier: 1}
	c := &collector{}
	r := NewReceiver(src, messages.NewRegistry(), c, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	src.mu.Lock()
	src.steps = append(src.steps, step{data: encode(t, messages.NewHeartbeat())}, step{err: errEOF})
	src.mu.Unlock()
	src.ready <- struct{}{}

	select {
	case err := <-done:
		if !errors.Is(err, errEOF) {
			t.Fatalf("expected transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver did not wake on ready")
	}
	if got := c.rendered(); len(got) != 1 {
		t.Fatalf("unexpected messages %q", got)
	}
}

type sinkRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	fail   error
}

func (s *sinkRecorder) Write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	return nil
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestSenderAndHeartbeats(t *testing.T) {
	testlog.Start(t)
	sink := &sinkRecorder{}
	s := NewSender(sink, "client")
	if err := s.Send(messages.NewReadOnly("A", "x")); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunHeartbeats(ctx, s, 2*time.Millisecond) }()
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.count() < 3 {
		t.Fatalf("expected heartbeats, got %d frames", sink.count())
	}

	sink.mu.Lock()
	last := sink.frames[len(sink.frames)-1]
	sink.mu.Unlock()
	msg, err := messages.NewRegistry().Decode(last)
	if err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if msg.Type() != protocol.TypeHeartbeat {
		t.Fatalf("unexpected type %d", msg.Type())
	}
}

func TestRunHeartbeatsStopsOnWriteError(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("write boom")
	s := NewSender(&sinkRecorder{fail: boom}, "client")
	if err := RunHeartbeats(context.Background(), s, time.Millisecond); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}
