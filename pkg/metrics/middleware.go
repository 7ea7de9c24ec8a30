package metrics

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultBuckets = []float64{50, 300, 1000, 5000}
)

const (
	// EnvLatencyBuckets is formatted like "100,200,300,400"
	EnvLatencyBuckets     = "TRAINER_HTTP_LATENCY_BUCKETS"
	RequestsCollectorName = "edge_trainer_http_requests_total"
	LatencyCollectorName  = "edge_trainer_http_request_duration_milliseconds"
)

// Middleware records the number and the latency of the API requests partitioned
// by status code, method and route pattern.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func latencyBuckets() ([]float64, error) {
	conf, ok := os.LookupEnv(EnvLatencyBuckets)
	if !ok {
		return defaultBuckets, nil
	}

	var buckets []float64
	for _, v := range strings.Split(conf, ",") {
		f64v, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", EnvLatencyBuckets, conf, err)
		}
		buckets = append(buckets, f64v)
	}
	return buckets, nil
}

func NewMiddleware(name string) (*Middleware, error) {
	buckets, err := latencyBuckets()
	if err != nil {
		return nil, err
	}

	m := &Middleware{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        RequestsCollectorName,
				Help:        "Number of HTTP requests partitioned by status code, method and HTTP path.",
				ConstLabels: prometheus.Labels{"service": name},
			}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        LatencyCollectorName,
			Help:        "Time spent on the request partitioned by status code, method and HTTP path.",
			ConstLabels: prometheus.Labels{"service": name},
			Buckets:     buckets,
		}, []string{"code", "method", "path"}),
	}
	return m, nil
}

// Handler returns a handler for the middleware pattern.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rp := rctx.RoutePattern()
			code := strconv.Itoa(ww.Status())
			m.requests.WithLabelValues(code, r.Method, rp).Inc()
			m.latency.WithLabelValues(code, r.Method, rp).Observe(float64(time.Since(start).Milliseconds()))
		}
	}
	return http.HandlerFunc(fn)
}

// Register adds the collectors to reg.
func (m *Middleware) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.latency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
