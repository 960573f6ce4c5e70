package mapdb

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	constructors   = make(map[string]Constructor)
	constructorsMu sync.RWMutex
)

// RegisterProviders registers Backend constructors under their backend names.
// This should be called during initialization to register all available backends.
func RegisterProviders(providers map[string]Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	for name, constructor := range providers {
		constructors[name] = constructor
	}
}

// GetProviders returns a copy of the currently registered constructors.
// This is useful for tests that need to preserve and restore providers.
func GetProviders() map[string]Constructor {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	var copy = make(map[string]Constructor, len(constructors))
	for name, constructor := range constructors {
		copy[name] = constructor
	}
	return copy
}

// ProviderNames returns the sorted names of registered constructors.
func ProviderNames() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	var names = make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered returns whether |name| is a registered backend.
func IsRegistered(name string) bool {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	var _, ok = constructors[name]
	return ok
}

// Open the |name| Backend at the Location. The returned Backend is
// instrumented with operation metrics. Unregistered names fail with
// ErrUnknownBackend, and construction failures with an *OpenError.
func Open(name string, loc Location, mode OpenMode) (*InstrumentedBackend, error) {
	constructorsMu.RLock()
	var constructor, ok = constructors[name]
	constructorsMu.RUnlock()

	if !ok {
		return nil, errors.WithMessagef(ErrUnknownBackend, "%q", name)
	}

	var started = timeNow()
	var backend, err = constructor(loc, mode)

	var status = "success"
	if err != nil {
		status = "error"
	}
	backendOperationTotal.WithLabelValues(name, "open", status).Inc()
	backendOperationDuration.WithLabelValues(name, "open", status).Observe(timeNow().Sub(started).Seconds())

	if err != nil {
		return nil, NewOpenError(name, err)
	}
	return &InstrumentedBackend{Backend: backend, label: name}, nil
}

var (
	backendOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapshift_backend_operation_duration_seconds",
		Help:    "Duration of map backend operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
	}, []string{"backend", "operation", "status"})

	backendOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapshift_backend_operation_total",
		Help: "Total number of map backend operations",
	}, []string{"backend", "operation", "status"})

	backendListBlocks = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapshift_backend_list_blocks_count",
		Help:    "Number of blocks returned by list operations",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12), // 1 to ~4M blocks
	}, []string{"backend"})
)
