package observability

import (
	"chat-presence/runtime"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_presence"

// Metrics owns a private Prometheus registry.
// It observes broadcast reports and receives the telemetry worker samples.
type Metrics struct {
	registry *prometheus.Registry

	onlineUsers  prometheus.Gauge
	connections  prometheus.Gauge
	rooms        prometheus.Gauge
	queueLength  *prometheus.GaugeVec
	queueCap     *prometheus.GaugeVec
	processCPU   prometheus.Gauge
	processRAM   prometheus.Gauge
	broadcasts   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	indexRepairs prometheus.Counter
	evictions    prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online_users",
			Help: "Users holding at least one connection.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "indexed_rooms",
			Help: "Rooms with at least one subscriber in the room index.",
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_length",
			Help: "Buffered items waiting in an internal queue.",
		}, []string{"queue"}),
		queueCap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_capacity",
			Help: "Capacity of an internal queue.",
		}, []string{"queue"}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "CPU usage of the server process.",
		}),
		processRAM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_memory_percent",
			Help: "Memory usage of the server process.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcasts_total",
			Help: "Room broadcasts by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Per connection delivery attempts by result.",
		}, []string{"result"}),
		indexRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_repairs_total",
			Help: "Subscriptions added back to the room index by the broadcast fallback.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_evictions_total",
			Help: "Stale subscriptions removed from the room index.",
		}),
	}
	m.registry.MustRegister(
		m.onlineUsers, m.connections, m.rooms,
		m.queueLength, m.queueCap,
		m.processCPU, m.processRAM,
		m.broadcasts, m.deliveries, m.indexRepairs, m.evictions,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveBroadcast is meant to be registered with Broadcaster.WithObserver.
func (m *Metrics) ObserveBroadcast(report runtime.Report) {
	m.broadcasts.WithLabelValues(report.Outcome.String()).Inc()
	m.deliveries.WithLabelValues("succeeded").Add(float64(report.Succeeded))
	m.deliveries.WithLabelValues("failed").Add(float64(report.Failed))
	m.indexRepairs.Add(float64(report.Repaired))
	m.evictions.Add(float64(report.Evicted))
}

func (m *Metrics) SetPresence(users, connections, rooms int) {
	m.onlineUsers.Set(float64(users))
	m.connections.Set(float64(connections))
	m.rooms.Set(float64(rooms))
}

func (m *Metrics) SetQueue(name string, length, capacity int) {
	m.queueLength.WithLabelValues(name).Set(float64(length))
	m.queueCap.WithLabelValues(name).Set(float64(capacity))
}

func (m *Metrics) SetProcess(cpu float64, ram float32) {
	m.processCPU.Set(cpu)
	m.processRAM.Set(float64(ram))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
