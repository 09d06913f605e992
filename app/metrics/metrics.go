package metrics

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
)

// Metrics exposes email queue counters and depth gauges. It is a
// queue.Listener.
type Metrics struct {
	Enqueued  prometheus.Counter
	Completed prometheus.Counter
	Failed    *prometheus.CounterVec
	Stalled   prometheus.Counter
	Depth     *prometheus.GaugeVec
	Paused    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_emails_enqueued_total",
			Help: "Total email jobs enqueued",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_emails_sent_total",
			Help: "Total emails sent",
		}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailer_email_failures_total",
			Help: "Total failed delivery attempts",
		}, []string{"final"}),
		Stalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailer_email_stalled_total",
			Help: "Total email jobs recovered after a lost lock",
		}),
		Depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailer_queue_jobs",
			Help: "Email jobs per state",
		}, []string{"state"}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailer_queue_paused",
			Help: "1 while the email queue is paused",
		}),
	}

	reg.MustRegister(m.Enqueued, m.Completed, m.Failed, m.Stalled, m.Depth, m.Paused)
	return m
}

func (m *Metrics) OnEnqueued(_ context.Context, _ *queue.Job) {
	m.Enqueued.Inc()
}

func (m *Metrics) OnActive(_ context.Context, _ *queue.Job) {}

func (m *Metrics) OnCompleted(_ context.Context, _ *queue.Job, _ *queue.Result) {
	m.Completed.Inc()
}

func (m *Metrics) OnFailed(_ context.Context, _ *queue.Job, err error) {
	var permanent *queue.PermanentFailureError
	m.Failed.WithLabelValues(strconv.FormatBool(errors.As(err, &permanent))).Inc()
}

func (m *Metrics) OnStalled(_ context.Context, _ string) {
	m.Stalled.Inc()
}

// ObserveStats copies a stats snapshot into the depth gauges.
func (m *Metrics) ObserveStats(stats queue.Stats) {
	m.Depth.WithLabelValues(string(queue.StateWaiting)).Set(float64(stats.Waiting))
	m.Depth.WithLabelValues(string(queue.StateActive)).Set(float64(stats.Active))
	m.Depth.WithLabelValues(string(queue.StateCompleted)).Set(float64(stats.Completed))
	m.Depth.WithLabelValues(string(queue.StateFailed)).Set(float64(stats.Failed))
	m.Depth.WithLabelValues(string(queue.StateDelayed)).Set(float64(stats.Delayed))
	if stats.Paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}
