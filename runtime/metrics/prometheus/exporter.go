package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// defaultReadHeaderTimeout is the timeout for reading request headers.
	defaultReadHeaderTimeout = 10 * time.Second
)

// HealthFunc reports whether the bot is healthy. A non-nil error makes
// /health answer 503 with the error text.
type HealthFunc func(ctx context.Context) error

// Exporter serves Prometheus metrics and a health probe over HTTP.
type Exporter struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
	health   HealthFunc
	mu       sync.Mutex
	started  bool
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithHealthCheck makes /health report the result of fn.
func WithHealthCheck(fn HealthFunc) ExporterOption {
	return func(e *Exporter) { e.health = fn }
}

// WithRegistry uses reg instead of a fresh registry with the bot metrics.
func WithRegistry(reg *prometheus.Registry) ExporterOption {
	return func(e *Exporter) { e.registry = reg }
}

// NewExporter creates an exporter that serves metrics at addr.
func NewExporter(addr string, opts ...ExporterOption) *Exporter {
	e := &Exporter{addr: addr}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		reg := prometheus.NewRegistry()
		for _, collector := range allMetrics {
			reg.MustRegister(collector)
		}
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		e.registry = reg
	}
	return e
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Start serves /metrics and /health. It blocks until the server stops and
// returns http.ErrServerClosed after Shutdown.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           e.Mux(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	e.started = true
	e.mu.Unlock()

	return e.server.ListenAndServe()
}

// Shutdown gracefully stops the exporter with the given context.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil && e.started {
		e.started = false
		return e.server.Shutdown(ctx)
	}
	return nil
}

// Mux returns the handler tree served by Start.
func (e *Exporter) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", e.serveHealth)
	return mux
}

// Handler returns an http.Handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (e *Exporter) serveHealth(w http.ResponseWriter, r *http.Request) {
	if e.health != nil {
		if err := e.health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	// Client may have gone away; nothing to do about a failed write.
	_, _ = w.Write([]byte("ok"))
}

// MustRegister registers additional collectors with the exporter's registry.
func (e *Exporter) MustRegister(cs ...prometheus.Collector) {
	e.registry.MustRegister(cs...)
}
