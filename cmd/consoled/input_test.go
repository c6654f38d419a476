package main

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/danmuck/conswire/internal/testutil/testlog"
)

type fakeBroadcaster struct {
	calls   []string
	pending map[uint32]bool
	next    uint32
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{pending: make(map[uint32]bool)}
}

func (f *fakeBroadcaster) SendReadOnly(source string, lines ...string) (int, error) {
	f.calls = append(f.calls, "ro:"+source+":"+strings.Join(lines, ","))
	return 2, nil
}

func (f *fakeBroadcaster) SendReadReply(source string, maxReply uint32, lines ...string) (uint32, error) {
	f.next++
	f.pending[f.next] = true
	f.calls = append(f.calls, "rr:"+source+":"+strings.Join(lines, ","))
	return f.next, nil
}

func (f *fakeBroadcaster) ClearReadReply(id uint32) bool {
	ok := f.pending[id]
	delete(f.pending, id)
	return ok
}

func (f *fakeBroadcaster) SendStatus(line1, line2 string) (int, error) {
	f.calls = append(f.calls, "st:"+line1+":"+line2)
	return 1, nil
}

func (f *fakeBroadcaster) Reset() {
	f.calls = append(f.calls, "reset")
	clear(f.pending)
}

func TestHandleLine(t *testing.T) {
	testlog.Start(t)
	b := newFakeBroadcaster()
	cases := []struct {
		line string
		want string
	}{
		{"BOOT OK", "sent to 2"},
		{"?MOUNT TAPE", "read-reply 1 pending"},
		{"!RUNNING|0 JOBS", "status sent to 1"},
		{"~1", "read-reply 1 cleared"},
		{"~1", "read-reply 1 not pending"},
		{"#reset", "reset"},
		{"", ""},
	}
	for _, tc := range cases {
		got, err := handleLine(b, "SYS", 80, tc.line)
		if err != nil {
			t.Fatalf("handleLine(%q): %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("handleLine(%q)=%q want %q", tc.line, got, tc.want)
		}
	}
	want := []string{"ro:SYS:BOOT OK", "rr:SYS:MOUNT TAPE", "st:RUNNING:0 JOBS", "reset"}
	if !slices.Equal(b.calls, want) {
		t.Fatalf("unexpected calls %q", b.calls)
	}
	if _, err := handleLine(b, "SYS", 80, "~abc"); err == nil {
		t.Fatalf("expected parse error for bad id")
	}
}

func TestPumpInputReportsAndContinues(t *testing.T) {
	testlog.Start(t)
	b := newFakeBroadcaster()
	var reports []string
	input := "first\n~nope\nsecond\n"
	err := pumpInput(context.Background(), strings.NewReader(input), b, "OPR", 80, func(s string) {
		reports = append(reports, s)
	})
	if err != nil {
		t.Fatalf("pump input: %v", err)
	}
	if len(reports) != 3 || !strings.HasPrefix(reports[1], "error:") {
		t.Fatalf("unexpected reports %q", reports)
	}
	if !slices.Equal(b.calls, []string{"ro:OPR:first", "ro:OPR:second"}) {
		t.Fatalf("unexpected calls %q", b.calls)
	}
}
