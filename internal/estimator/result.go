package estimator

import "fmt"

// Kind tags the variant carried by a Result.
type Kind string

// Result kinds.
const (
	KindPending       Kind = "pending"
	KindEstimate      Kind = "estimate"
	KindComplete      Kind = "complete"
	KindIndeterminate Kind = "indeterminate"
)

// Result is the outcome of a single Observe call. Only KindEstimate carries a
// meaningful ETA.
type Result struct {
	Kind       Kind
	ETASeconds float64
}

// Pending reports that the baseline was just established.
func Pending() Result { return Result{Kind: KindPending} }

// Estimate reports the remaining time in seconds.
func Estimate(etaSeconds float64) Result {
	return Result{Kind: KindEstimate, ETASeconds: etaSeconds}
}

// Complete reports that verification has finished.
func Complete() Result { return Result{Kind: KindComplete} }

// Indeterminate reports zero progress since the baseline.
func Indeterminate() Result { return Result{Kind: KindIndeterminate} }

// ETA returns the estimate and true when r is an Estimate.
func (r Result) ETA() (float64, bool) {
	if r.Kind != KindEstimate {
		return 0, false
	}
	return r.ETASeconds, true
}

func (r Result) String() string {
	if r.Kind == KindEstimate {
		return fmt.Sprintf("%s(%gs)", r.Kind, r.ETASeconds)
	}
	return string(r.Kind)
}
