// Package metrics exports node and session metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/samcm/lavafries/internal/events"
)

const (
	namespace = "lavafries"
)

// Metrics turns published events into Prometheus series.
type Metrics struct {
	log logrus.FieldLogger

	// NodeConnected is 1 while the node socket is open
	NodeConnected *prometheus.GaugeVec
	// NodePlayers tracks the player count reported by each node
	NodePlayers *prometheus.GaugeVec
	// NodePlayingPlayers tracks the playing player count reported by each node
	NodePlayingPlayers *prometheus.GaugeVec
	// NodeLoad tracks the CPU load percentage used for node selection
	NodeLoad *prometheus.GaugeVec
	// NodeMemoryUsed tracks used node memory in bytes
	NodeMemoryUsed *prometheus.GaugeVec
	// NodeReconnects counts reconnect attempts
	NodeReconnects *prometheus.CounterVec
	// NodeErrors counts transport and protocol errors
	NodeErrors *prometheus.CounterVec
	// Sessions tracks live sessions
	Sessions prometheus.Gauge
	// TracksStarted counts started tracks
	TracksStarted prometheus.Counter
	// TrackFailures counts stuck and failed tracks
	TrackFailures *prometheus.CounterVec
	// QueueEnds counts drained queues
	QueueEnds prometheus.Counter
	// Events counts every published event
	Events *prometheus.CounterVec
}

// New registers the lavafries series on reg.
func New(log logrus.FieldLogger, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		log: log.WithField("component", "metrics"),
		NodeConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_connected",
				Help:      "Whether the node socket is open",
			},
			[]string{"host"},
		),
		NodePlayers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_players",
				Help:      "Players reported by the node",
			},
			[]string{"host"},
		),
		NodePlayingPlayers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_playing_players",
				Help:      "Playing players reported by the node",
			},
			[]string{"host"},
		),
		NodeLoad: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_load_percent",
				Help:      "System load of the node in percent of its cores",
			},
			[]string{"host"},
		),
		NodeMemoryUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_memory_used_bytes",
				Help:      "Memory used by the node in bytes",
			},
			[]string{"host"},
		),
		NodeReconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_reconnects_total",
				Help:      "Total number of node reconnect attempts",
			},
			[]string{"host"},
		),
		NodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_errors_total",
				Help:      "Total number of node transport and protocol errors",
			},
			[]string{"host"},
		),
		Sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "Number of live sessions",
			},
		),
		TracksStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracks_started_total",
				Help:      "Total number of started tracks",
			},
		),
		TrackFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "track_failures_total",
				Help:      "Total number of tracks that got stuck or raised an exception",
			},
			[]string{"reason"}, // stuck/exception
		),
		QueueEnds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_ends_total",
				Help:      "Total number of queues that played to the end",
			},
		),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of published events",
			},
			[]string{"event"},
		),
	}
}

// Handle records one event. Subscribe it to the event bus.
func (m *Metrics) Handle(e events.Event) {
	m.Events.WithLabelValues(e.Name()).Inc()

	switch ev := e.(type) {
	case events.NodeConnect:
		m.NodeConnected.WithLabelValues(ev.Host).Set(1)
	case events.NodeClose:
		m.NodeConnected.WithLabelValues(ev.Host).Set(0)
	case events.NodeFatal:
		m.NodeConnected.WithLabelValues(ev.Host).Set(0)
		m.log.WithField("host", ev.Host).Debug("Node marked down")
	case events.NodeReconnect:
		m.NodeReconnects.WithLabelValues(ev.Host).Inc()
	case events.NodeError:
		m.NodeErrors.WithLabelValues(ev.Host).Inc()
	case events.NodeStats:
		m.NodePlayers.WithLabelValues(ev.Host).Set(float64(ev.Stats.Players))
		m.NodePlayingPlayers.WithLabelValues(ev.Host).Set(float64(ev.Stats.PlayingPlayers))
		m.NodeLoad.WithLabelValues(ev.Host).Set(ev.Stats.Load())
		m.NodeMemoryUsed.WithLabelValues(ev.Host).Set(float64(ev.Stats.Memory.Used))
	case events.PlayerCreate:
		m.Sessions.Inc()
	case events.PlayerDestroy:
		m.Sessions.Dec()
	case events.TrackStart:
		m.TracksStarted.Inc()
	case events.TrackStuck:
		m.TrackFailures.WithLabelValues("stuck").Inc()
	case events.TrackError:
		m.TrackFailures.WithLabelValues("exception").Inc()
	case events.QueueEnd:
		m.QueueEnds.Inc()
	}
}
