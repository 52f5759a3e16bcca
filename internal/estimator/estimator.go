// Package estimator turns successive verification progress samples into a
// linear estimate of the time left until progress reaches 1.0.
//
// The estimator keeps a single baseline, the first sample it ever observes,
// and extrapolates every later sample against it. The reference point is
// never moved, so the estimate adapts slowly to rate changes; when the
// progress delta since the baseline is tiny the division amplifies noise and
// the ETA swings widely. Both are known properties of the model.
package estimator

import "sync"

// CompleteThreshold is the progress at or above which a zero remaining time
// counts as completion.
const CompleteThreshold = 0.99

// Sample is one progress observation.
type Sample struct {
	// Progress is the verification fraction in [0,1].
	Progress float64
	// TimestampSeconds is the Unix time of the observation in whole seconds.
	TimestampSeconds int64
}

// Estimator holds the session baseline. The zero value is ready to use.
type Estimator struct {
	mu       sync.Mutex
	baseline Sample
	hasBase  bool
}

// New returns an Estimator with no baseline.
func New() *Estimator {
	return &Estimator{}
}

// Observe records sample and returns the resulting estimate. The first call
// stores sample as the baseline and returns Pending.
func (e *Estimator) Observe(sample Sample) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasBase {
		e.baseline = sample
		e.hasBase = true
		return Pending()
	}

	deltaTime := float64(sample.TimestampSeconds - e.baseline.TimestampSeconds)
	deltaProgress := sample.Progress - e.baseline.Progress
	if deltaProgress == 0 {
		return Indeterminate()
	}

	rate := deltaTime / deltaProgress
	remaining := rate * (1 - sample.Progress)
	if remaining == 0 && sample.Progress >= CompleteThreshold {
		return Complete()
	}
	return Estimate(remaining)
}

// Baseline returns the stored baseline and whether one has been set.
func (e *Estimator) Baseline() (Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline, e.hasBase
}
