// Package metrics defines the minimal metrics surface the job emits. The
// pipeline depends only on Backend; concrete submitters live in subpackages.
package metrics

// Labels are metric tag key/values.
type Labels map[string]string

// Backend receives counters and histogram samples from the job.
//
// Implementations must be safe for concurrent use. IncCounter and
// ObserveHistogram must be cheap; buffering and submission belong in Flush.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered metrics. Returns nil when there is nothing to send.
	Flush() error

	// Close stops any background work and performs a final Flush.
	Close() error
}

// Nop discards all metrics. Used when no backend is configured.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
