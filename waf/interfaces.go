package waf

import (
	"context"
	"time"

	"bouncer/facts"
)

// Classifier decides whether a request is admitted. On Reject it also names the rule that fired.
type Classifier interface {
	Evaluate(f *facts.Facts) (decision Decision, rule string)
}

// EvidenceStore persists rejected requests.
type EvidenceStore interface {
	RecordRejection(ctx context.Context, f *facts.Facts) error
}

// MetricsRecorder receives the firewall's counters. Implementations must tolerate concurrent calls.
type MetricsRecorder interface {
	ObserveVerdict(decision string, rule string)
	ObserveEvidenceWrite(outcome string, elapsed time.Duration)
}

// Outcomes reported to MetricsRecorder.ObserveEvidenceWrite.
const (
	EvidenceWriteOK      = "ok"
	EvidenceWriteError   = "error"
	EvidenceWriteTimeout = "timeout"
)
