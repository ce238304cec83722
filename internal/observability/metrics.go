package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the server's Prometheus metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	FlowSaves       *prometheus.CounterVec
	FlowNodes       prometheus.Gauge
	FlowEdges       prometheus.Gauge
	WSConnections   prometheus.Gauge
	WSBroadcasts    prometheus.Counter
	WSDroppedClient prometheus.Counter
}

// NewCollector creates and registers the metrics under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		FlowSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_saves_total",
				Help:      "Total number of flow saves",
			},
			[]string{"status"},
		),
		FlowNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_nodes",
			Help:      "Number of nodes in the last saved flow",
		}),
		FlowEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_edges",
			Help:      "Number of edges in the last saved flow",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open push channel connections",
		}),
		WSBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_sent_total",
			Help:      "Messages queued to push channel clients",
		}),
		WSDroppedClient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_slow_clients_dropped_total",
			Help:      "Clients disconnected because their send buffer was full",
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.FlowSaves,
		c.FlowNodes,
		c.FlowEdges,
		c.WSConnections,
		c.WSBroadcasts,
		c.WSDroppedClient,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordSave counts a save attempt and, on success, the resulting flow size.
func (c *Collector) RecordSave(nodes, edges int, err error) {
	if err != nil {
		c.FlowSaves.WithLabelValues("error").Inc()
		return
	}
	c.FlowSaves.WithLabelValues("ok").Inc()
	c.FlowNodes.Set(float64(nodes))
	c.FlowEdges.Set(float64(edges))
}
