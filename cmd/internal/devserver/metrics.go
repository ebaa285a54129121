package devserver

import "github.com/prometheus/client_golang/prometheus"

type serverMetrics struct {
	messages *prometheus.CounterVec
	relayed  prometheus.Counter
	statuses *prometheus.CounterVec
	dropped  prometheus.Counter
	sessions prometheus.Gauge
	rejected *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "messages_stored_total",
			Help:      "Create-message requests, by outcome (stored or replayed).",
		}, []string{"result"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "messages_relayed_total",
			Help:      "message_send announcements relayed as message_new.",
		}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "status_events_total",
			Help:      "message_status events broadcast, by status.",
		}, []string{"status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "broadcast_dropped_total",
			Help:      "Frames dropped because a member queue was full.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "push_sessions",
			Help:      "Live push sessions.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "devserver",
			Name:      "push_rejected_total",
			Help:      "Push handshakes rejected, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.relayed, m.statuses, m.dropped, m.sessions, m.rejected)
	}
	return m
}
