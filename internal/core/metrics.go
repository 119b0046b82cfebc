package core

import "time"

// MetricsRecorder receives operational counters from the engine and synchronizer.
// The HTTP server implements it on top of its Prometheus registry.
type MetricsRecorder interface {
	RecordOperation(op, status string, duration time.Duration)
	RecordPollTick()
	SetQueueSize(size int)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, time.Duration) {}
func (nopRecorder) RecordPollTick()                               {}
func (nopRecorder) SetQueueSize(int)                              {}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
