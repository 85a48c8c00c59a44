package port

import "time"

// Metrics receives workflow counters. The prometheus adapter implements it;
// NopMetrics is used when metrics are disabled.
type Metrics interface {
	InstanceStarted(templateID string)
	InstanceClosed(status string)
	TaskCompleted(action string)
	TaskMarkedOverdue()
	TaskEscalated()
	EscalationSkipped(reason string)
	SchedulerTick(duration time.Duration, failures int)
	NotificationSent(kind string, err error)
}

// NopMetrics discards every observation
type NopMetrics struct{}

func (NopMetrics) InstanceStarted(string) {}
func (NopMetrics) InstanceClosed(string) {}
func (NopMetrics) TaskCompleted(string) {}
func (NopMetrics) TaskMarkedOverdue() {}
func (NopMetrics) TaskEscalated() {}
func (NopMetrics) EscalationSkipped(string) {}
func (NopMetrics) SchedulerTick(time.Duration, int) {}
func (NopMetrics) NotificationSent(string, error) {}
