package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oracle_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	roundsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "challenge",
			Name:      "rounds_resolved_total",
			Help:      "Total number of challenge rounds resolved.",
		},
		[]string{"outcome"},
	)

	votesCast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "challenge",
			Name:      "votes_total",
			Help:      "Total number of votes cast in challenge rounds.",
		},
		[]string{"approve"},
	)

	disputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "dispute",
			Name:      "reports_total",
			Help:      "Total number of dispute reports filed.",
		},
		[]string{"result"},
	)

	priceReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "feed",
			Name:      "reads_total",
			Help:      "Total number of paid price reads served.",
		},
		[]string{"oracle_id"},
	)

	stakeMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_layer",
			Subsystem: "stake",
			Name:      "movements_total",
			Help:      "Total number of stake ledger movements.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		roundsResolved,
		votesCast,
		disputes,
		priceReads,
		stakeMovements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRoundResolved records a resolved challenge round.
func RecordRoundResolved(outcome string) {
	roundsResolved.WithLabelValues(outcome).Inc()
}

// RecordVote records a cast ballot.
func RecordVote(approve bool) {
	votesCast.WithLabelValues(strconv.FormatBool(approve)).Inc()
}

// RecordDispute records a dispute report and its result.
func RecordDispute(result string) {
	disputes.WithLabelValues(result).Inc()
}

// RecordPriceRead records a paid price read.
func RecordPriceRead(oracleID string) {
	if oracleID == "" {
		oracleID = "unknown"
	}
	priceReads.WithLabelValues(oracleID).Inc()
}

// RecordStakeMovement records a stake ledger movement by type.
func RecordStakeMovement(entryType string) {
	stakeMovements.WithLabelValues(entryType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "oracles" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/oracles"
	}
	if len(parts) == 2 {
		return "/oracles/:oracle"
	}
	return "/oracles/:oracle/" + parts[2]
}
