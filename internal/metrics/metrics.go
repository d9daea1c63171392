// Package metrics exposes Prometheus counters for the coaching pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "podium"

// Collector records pipeline events as Prometheus counters. It satisfies
// session.Instruments, so sessions count deliveries, purges, and dropped
// frames without knowing about the registry.
type Collector struct {
	sessionsOpened   prometheus.Counter
	sessionsClosed   prometheus.Counter
	deliveries       *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	eagerOutcomes    *prometheus.CounterVec
	invalidations    *prometheus.CounterVec
	purges           *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
}

// NewCollector registers the podium counters with reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Websocket sessions opened.",
		}),
		sessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Websocket sessions closed.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Completed feedback deliveries by path.",
		}, []string{"path"}),
		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed feedback deliveries by pipeline stage.",
		}, []string{"stage"}),
		eagerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eager_runs_total",
			Help:      "Background evaluation runs by outcome.",
		}, []string{"outcome"}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "In-flight results discarded by reason.",
		}, []string{"reason"}),
		purges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Retained data purges by reason.",
		}, []string{"reason"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_frames_dropped_total",
			Help:      "Media frames dropped before transcription by reason.",
		}, []string{"reason"}),
	}
}

// SessionOpened counts a new websocket session.
func (c *Collector) SessionOpened() { c.sessionsOpened.Inc() }

// SessionClosed counts a finished websocket session.
func (c *Collector) SessionClosed() { c.sessionsClosed.Inc() }

func (c *Collector) Delivery(path string)         { c.deliveries.WithLabelValues(path).Inc() }
func (c *Collector) DeliveryFailure(stage string) { c.deliveryFailures.WithLabelValues(stage).Inc() }
func (c *Collector) EagerOutcome(outcome string)  { c.eagerOutcomes.WithLabelValues(outcome).Inc() }
func (c *Collector) Invalidation(reason string)   { c.invalidations.WithLabelValues(reason).Inc() }
func (c *Collector) Purge(reason string)          { c.purges.WithLabelValues(reason).Inc() }
func (c *Collector) FrameDropped(reason string)   { c.framesDropped.WithLabelValues(reason).Inc() }
