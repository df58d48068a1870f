package monitoring

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "notifyd".
	Namespace string
	// ExcludeDefaultGatherer serves only the module registry when true. The
	// default gatherer carries the pkg/metrics counters and the runtime collectors.
	ExcludeDefaultGatherer bool
}

// Module coordinates the module-owned collectors, runtime health probes and
// the in-process delivery and maintenance summary.
type Module struct {
	registry *prometheus.Registry
	gatherer prometheus.Gatherer
	metrics  *collectors
	stats    *statStore
	health   *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "notifyd"
	}

	registry := prometheus.NewRegistry()
	metrics := newCollectors(namespace)
	for _, collector := range metrics.all() {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	var gatherer prometheus.Gatherer = registry
	if !opts.ExcludeDefaultGatherer {
		gatherer = prometheus.Gatherers{prometheus.DefaultGatherer, registry}
	}

	return &Module{
		registry: registry,
		gatherer: gatherer,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealthManager(),
	}, nil
}

// Registry exposes the module-owned Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving Prometheus metrics for this module.
func (m *Module) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Summary returns the module's in-process statistics.
func (m *Module) Summary() Summary {
	if m == nil {
		return Summary{}
	}
	return m.stats.summary()
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide monitoring module used by instrumentation helpers.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}
