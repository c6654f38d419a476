package observability

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conswire"

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "frames_total",
			Help:      "Frames decoded and dispatched.",
		},
		[]string{"role", "category", "type"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "bytes_total",
			Help:      "Raw bytes read from transports.",
		},
		[]string{"role"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "receiver",
			Name:      "decode_errors_total",
			Help:      "Frame decode failures by error kind.",
		},
		[]string{"role", "kind"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "messages_total",
			Help:      "Messages encoded and written.",
		},
		[]string{"role", "category", "type"},
	)
	consoleClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "clients",
			Help:      "Connected console clients.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, bytesReceived, decodeErrors, messagesSent, consoleClients)
	})
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordFrame(role, category string, typ uint32) {
	RegisterMetrics()
	framesReceived.WithLabelValues(role, category, strconv.FormatUint(uint64(typ), 10)).Inc()
}

func RecordBytes(role string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	bytesReceived.WithLabelValues(role).Add(float64(n))
}

func RecordDecodeError(role, kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(role, kind).Inc()
}

func RecordSent(role, category string, typ uint32) {
	RegisterMetrics()
	messagesSent.WithLabelValues(role, category, strconv.FormatUint(uint64(typ), 10)).Inc()
}

func SetConsoleClients(n int) {
	RegisterMetrics()
	consoleClients.Set(float64(n))
}
