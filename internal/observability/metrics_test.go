package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/conswire/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordFrame("client", "console", 101)
	RecordBytes("client", 24)
	RecordBytes("client", 0)
	RecordDecodeError("client", "unknown_type")
	RecordSent("server", "system", 1)
	SetConsoleClients(3)

	if body := scrape(t); !strings.Contains(body, "conswire_console_clients 3") {
		t.Fatalf("console clients gauge not exported")
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	testlog.Start(t)
	RecordFrame("client", "system", 1)

	if body := scrape(t); !strings.Contains(body, "conswire_receiver_frames_total") {
		t.Fatalf("metrics output missing frames counter")
	}
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
