package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Sent    prometheus.Counter
	Failed  prometheus.Counter
	Dropped prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_notifier_sent_total",
			Help: "Total number of emails handed to the transport",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_notifier_failed_total",
			Help: "Total number of emails the transport rejected",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_notifier_dropped_total",
			Help: "Total number of emails dropped while the circuit was open or the message was invalid",
		}),
	}
}

func (m *Metrics) IncrementSent()    { m.Sent.Inc() }
func (m *Metrics) IncrementFailed()  { m.Failed.Inc() }
func (m *Metrics) IncrementDropped() { m.Dropped.Inc() }
