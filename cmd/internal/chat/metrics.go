package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts reconciler and transport activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	merged     *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	batches    *prometheus.CounterVec
	statuses   *prometheus.CounterVec
	sends      *prometheus.CounterVec
	pollTicks  prometheus.Counter
	pollErrors prometheus.Counter
	mode       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "messages_merged_total",
			Help:      "Messages appended to the store, by source.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "duplicates_total",
			Help:      "Candidates dropped as duplicates, by matching rule.",
		}, []string{"rule"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "batches_total",
			Help:      "Fallback batches seen, by outcome.",
		}, []string{"result"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "status_updates_total",
			Help:      "Delivery status events, by outcome.",
		}, []string{"result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "sends_total",
			Help:      "Send attempts, by outcome.",
		}, []string{"result"}),
		pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "poll_ticks_total",
			Help:      "Fallback re-fetches attempted.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "poll_errors_total",
			Help:      "Fallback re-fetches that failed.",
		}),
		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "unimatch",
			Subsystem: "chat",
			Name:      "transport_mode",
			Help:      "Active transport of the open view: 0 none, 1 live, 2 polling.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.merged, m.duplicates, m.batches, m.statuses, m.sends, m.pollTicks, m.pollErrors, m.mode)
	}
	return m
}

func (m *Metrics) incMerged(src Source) {
	if m != nil {
		m.merged.WithLabelValues(string(src)).Inc()
	}
}

func (m *Metrics) incDuplicate(rule string) {
	if m != nil {
		m.duplicates.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) incBatch(result string) {
	if m != nil {
		m.batches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) incStatus(r StatusResult) {
	if m != nil {
		m.statuses.WithLabelValues(r.String()).Inc()
	}
}

func (m *Metrics) incSend(result string) {
	if m != nil {
		m.sends.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) incPoll(err error) {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
	if err != nil {
		m.pollErrors.Inc()
	}
}

func (m *Metrics) setMode(mode Mode) {
	if m != nil {
		m.mode.Set(float64(mode))
	}
}
