package httpapp

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weftrun/weft"
)

// HealthCheck is a named blocking probe. It is run on the blocking
// executor (weft.Blocking), never inline on a request's worker.
type HealthCheck func(context.Context) error

// HealthRegistry collects named HealthChecks and fans them out through
// weft.Parallel, reporting both an aggregate status and per-check
// Prometheus gauges for scrape-based monitoring.
type HealthRegistry struct {
	controller *weft.Controller
	mu         sync.Mutex
	checks     map[string]HealthCheck
	gauges     map[string]prometheus.Gauge
	registerer prometheus.Registerer
}

// NewHealthRegistry builds a HealthRegistry backed by controller, exposing
// gauges through registerer (use prometheus.DefaultRegisterer for the
// global registry).
func NewHealthRegistry(controller *weft.Controller, registerer prometheus.Registerer) *HealthRegistry {
	return &HealthRegistry{
		controller: controller,
		checks:     make(map[string]HealthCheck),
		gauges:     make(map[string]prometheus.Gauge),
		registerer: registerer,
	}
}

// Register adds a named health check, creating (and registering) its
// Prometheus gauge the first time it's seen.
func (h *HealthRegistry) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	if _, ok := h.gauges[name]; !ok {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "weft_health_check_up",
			Help:        "1 if the named health check last succeeded, 0 otherwise.",
			ConstLabels: prometheus.Labels{"check": name},
		})
		if h.registerer != nil {
			h.registerer.MustRegister(gauge)
		}
		h.gauges[name] = gauge
	}
}

// HealthStatus is the outcome of a single named health check.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Check runs every registered health check in parallel on fresh
// Executions and returns a Promise of the per-check results, updating each
// check's gauge once all results are in.
func (h *HealthRegistry) Check() weft.Promise[map[string]HealthStatus] {
	h.mu.Lock()
	items := make(map[string]weft.Promise[HealthStatus], len(h.checks))
	for name, check := range h.checks {
		check := check
		probe := weft.Blocking(func() (struct{}, error) {
			return struct{}{}, check(context.Background())
		})
		items[name] = weft.OnError(weft.Map(probe, func(struct{}) HealthStatus {
			return HealthStatus{Healthy: true}
		}), func(err error) HealthStatus {
			return HealthStatus{Healthy: false, Error: err.Error()}
		})
	}
	h.mu.Unlock()

	return weft.Map(
		weft.Parallel(h.controller, items),
		func(results map[string]weft.ParallelResult[string, HealthStatus]) map[string]HealthStatus {
			out := make(map[string]HealthStatus, len(results))
			for name, r := range results {
				status := r.Value
				if r.Err != nil {
					status = HealthStatus{Healthy: false, Error: r.Err.Error()}
				}
				out[name] = status
				h.updateGauge(name, status.Healthy)
			}
			return out
		},
	)
}

func (h *HealthRegistry) updateGauge(name string, healthy bool) {
	h.mu.Lock()
	gauge := h.gauges[name]
	h.mu.Unlock()
	if gauge == nil {
		return
	}
	if healthy {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}

// Handler returns a Handler suitable for mounting at, e.g., "/health": 200
// if every check is healthy, 503 otherwise.
func (h *HealthRegistry) Handler() Handler {
	return func(c *Context) weft.Promise[Response] {
		return weft.Map(h.Check(), func(statuses map[string]HealthStatus) Response {
			status := http.StatusOK
			for _, s := range statuses {
				if !s.Healthy {
					status = http.StatusServiceUnavailable
					break
				}
			}
			return Response{Status: status, Body: statuses}
		})
	}
}
