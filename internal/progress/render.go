package progress

import (
	"math"
	"time"

	"github.com/JakeFAU/cyphernode-status/internal/estimator"
	"github.com/JakeFAU/cyphernode-status/internal/format"
)

// Status lines shown to the user.
const (
	TextComplete        = "Verification complete!"
	TextConnectionError = "Error connecting to cyphernode"
	textETAPrefix       = "Verification complete in "
)

// Render maps an estimator result for sample into a presenter Event.
//
// A Pending result yields a non-visual StageBaseline event. An Indeterminate
// result updates the bar but keeps the previous text, unless the node is
// already at or past the completion threshold, in which case it is shown as
// complete.
func Render(session [16]byte, ts time.Time, sample estimator.Sample, res estimator.Result) Event {
	evt := Event{
		SessionID: session,
		TS:        ts,
		Progress:  sample.Progress,
		Percent:   sample.Progress * 100,
	}
	switch res.Kind {
	case estimator.KindPending:
		evt.Stage = StageBaseline
	case estimator.KindComplete:
		evt.Stage = StageComplete
		evt.Style = StyleComplete
		evt.Text = TextComplete
	case estimator.KindIndeterminate:
		evt.Stage = StageIndeterminate
		evt.Style = StyleActive
		if sample.Progress >= estimator.CompleteThreshold {
			evt.Style = StyleComplete
			evt.Text = TextComplete
		}
	default:
		evt.Stage = StageEstimate
		evt.Style = StyleActive
		evt.ETA = secondsToDuration(res.ETASeconds)
		evt.Text = textETAPrefix + format.Duration(res.ETASeconds)
	}
	return evt
}

// ConnectionError builds the event shown when the status endpoint cannot be
// reached or answers with a non-200 status.
func ConnectionError(session [16]byte, ts time.Time, cause error) Event {
	evt := Event{
		SessionID: session,
		TS:        ts,
		Stage:     StageConnectionError,
		Percent:   100,
		Style:     StyleError,
		Text:      TextConnectionError,
	}
	if cause != nil {
		evt.Note = cause.Error()
	}
	return evt
}

// secondsToDuration saturates instead of overflowing for the very large ETAs
// a tiny progress delta can produce.
func secondsToDuration(seconds float64) time.Duration {
	ns := seconds * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}
