// Package metrics exposes workflow counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/approval-engine/internal/application/port"
)

const namespace = "approval"

// Prometheus implements port.Metrics on a private registry
type Prometheus struct {
	registry *prometheus.Registry

	instancesStarted   *prometheus.CounterVec
	instancesClosed    *prometheus.CounterVec
	tasksCompleted     *prometheus.CounterVec
	tasksOverdue       prometheus.Counter
	tasksEscalated     prometheus.Counter
	escalationsSkipped *prometheus.CounterVec
	tickDuration       prometheus.Histogram
	tickFailures       prometheus.Counter
	notifications      *prometheus.CounterVec
}

// NewPrometheus registers the workflow collectors plus the Go and process collectors
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		instancesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_started_total",
			Help:      "Workflow instances started, by template.",
		}, []string{"template"}),
		instancesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_closed_total",
			Help:      "Workflow instances that reached a terminal status.",
		}, []string{"status"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Approval tasks completed, by action.",
		}, []string{"action"}),
		tasksOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_overdue_total",
			Help:      "Tasks marked overdue by the scheduler.",
		}),
		tasksEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_escalated_total",
			Help:      "Tasks reassigned to an escalation role holder.",
		}),
		escalationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_skipped_total",
			Help:      "Escalations skipped, by reason.",
		}, []string{"reason"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of scheduler ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		tickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_failures_total",
			Help:      "Tasks the scheduler failed to process.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by kind and result.",
		}, []string{"kind", "result"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.instancesStarted,
		p.instancesClosed,
		p.tasksCompleted,
		p.tasksOverdue,
		p.tasksEscalated,
		p.escalationsSkipped,
		p.tickDuration,
		p.tickFailures,
		p.notifications,
	)
	return p
}

// Registry returns the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) InstanceStarted(templateID string) {
	p.instancesStarted.WithLabelValues(templateID).Inc()
}

func (p *Prometheus) InstanceClosed(status string) {
	p.instancesClosed.WithLabelValues(status).Inc()
}

func (p *Prometheus) TaskCompleted(action string) {
	p.tasksCompleted.WithLabelValues(action).Inc()
}

func (p *Prometheus) TaskMarkedOverdue() {
	p.tasksOverdue.Inc()
}

func (p *Prometheus) TaskEscalated() {
	p.tasksEscalated.Inc()
}

func (p *Prometheus) EscalationSkipped(reason string) {
	p.escalationsSkipped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) SchedulerTick(duration time.Duration, failures int) {
	p.tickDuration.Observe(duration.Seconds())
	p.tickFailures.Add(float64(failures))
}

func (p *Prometheus) NotificationSent(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.notifications.WithLabelValues(kind, result).Inc()
}

var _ port.Metrics = (*Prometheus)(nil)
