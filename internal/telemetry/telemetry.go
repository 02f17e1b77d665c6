// Package telemetry exposes Prometheus metrics for the attribution pipeline.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all attribution Prometheus metrics.
type Metrics struct {
	// Store tier metrics
	TierHits        *prometheus.CounterVec
	TierMisses      *prometheus.CounterVec
	TierDegraded    *prometheus.CounterVec
	DurableFailures prometheus.Counter

	// Session lifecycle metrics
	SessionsCreated  prometheus.Counter
	SessionsResumed  prometheus.Counter
	SessionsExpired  prometheus.Counter
	CartsLinked      prometheus.Counter
	Conversions      prometheus.Counter
	VersionConflicts prometheus.Counter

	// Funnel metrics
	FunnelComputations prometheus.Counter
	FunnelAnomalies    prometheus.Counter
}

// New registers and returns the service metrics on the default registry.
func New() *Metrics {
	m := &Metrics{}

	m.TierHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_store_tier_hits_total",
		Help: "Session reads served by each store tier (edge, shared, durable)",
	}, []string{"tier"})
	m.TierMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_store_tier_misses_total",
		Help: "Session reads that missed in each store tier",
	}, []string{"tier"})
	m.TierDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_store_tier_degraded_total",
		Help: "Reads or invalidations that fell through a tier due to unavailability",
	}, []string{"tier"})
	m.DurableFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_store_durable_failures_total",
		Help: "Writes rejected because the durable tier was unavailable",
	})

	m.SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_sessions_created_total",
		Help: "New sessions created",
	})
	m.SessionsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_sessions_resumed_total",
		Help: "Sessions resumed from a presented token",
	})
	m.SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_sessions_expired_total",
		Help: "Sessions transitioned to EXPIRED",
	})
	m.CartsLinked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_carts_linked_total",
		Help: "Cart linkages created",
	})
	m.Conversions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_conversions_total",
		Help: "Sessions transitioned to CONVERTED",
	})
	m.VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_version_conflicts_total",
		Help: "Compare-and-set writes that lost a race and returned current state",
	})

	m.FunnelComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_funnel_computations_total",
		Help: "Funnel snapshots computed",
	})
	m.FunnelAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_funnel_anomalies_total",
		Help: "Sessions counted in the anomalies bucket during funnel computation",
	})

	return m
}

// NewUnregistered returns metrics bound to a private registry. Used in tests
// to avoid duplicate registration on the global registry.
func NewUnregistered() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TierHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attribution_store_tier_hits_total", Help: "hits",
		}, []string{"tier"}),
		TierMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attribution_store_tier_misses_total", Help: "misses",
		}, []string{"tier"}),
		TierDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attribution_store_tier_degraded_total", Help: "degraded",
		}, []string{"tier"}),
		DurableFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_store_durable_failures_total", Help: "durable failures",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_sessions_created_total", Help: "created",
		}),
		SessionsResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_sessions_resumed_total", Help: "resumed",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_sessions_expired_total", Help: "expired",
		}),
		CartsLinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_carts_linked_total", Help: "linked",
		}),
		Conversions: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_conversions_total", Help: "conversions",
		}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_version_conflicts_total", Help: "conflicts",
		}),
		FunnelComputations: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_funnel_computations_total", Help: "computations",
		}),
		FunnelAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "attribution_funnel_anomalies_total", Help: "anomalies",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
