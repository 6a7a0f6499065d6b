package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LastSyncFunc reports when the last full pass completed, nil before the first one.
type LastSyncFunc func() *time.Time

var (
	cacheAgeOnce   sync.Once
	cacheAgeSource atomic.Pointer[LastSyncFunc]
)

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber. lastSync backs the
// cache_age_seconds gauge, evaluated on every scrape; -1 means never synced.
func MetricsHandler(lastSync LastSyncFunc) fiber.Handler {
	RegisterMetrics()
	if lastSync != nil {
		cacheAgeSource.Store(&lastSync)
	}

	cacheAgeOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cache_age_seconds",
			Help: "Seconds since the last completed full sync pass.",
		}, cacheAge))
	})

	return adaptor.HTTPHandler(promhttp.Handler())
}

func cacheAge() float64 {
	source := cacheAgeSource.Load()
	if source == nil {
		return -1
	}
	last := (*source)()
	if last == nil {
		return -1
	}
	return time.Since(*last).Seconds()
}
