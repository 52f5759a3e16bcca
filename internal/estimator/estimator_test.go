package estimator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveFirstSampleIsPending(t *testing.T) {
	t.Parallel()

	for _, sample := range []Sample{
		{Progress: 0, TimestampSeconds: 0},
		{Progress: 0.5, TimestampSeconds: 1700000000},
		{Progress: 1, TimestampSeconds: 42},
	} {
		e := New()
		require.Equal(t, Pending(), e.Observe(sample))

		base, ok := e.Baseline()
		require.True(t, ok)
		require.Equal(t, sample, base)
	}
}

func TestObserveZeroDeltaIsIndeterminate(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.10, TimestampSeconds: 0})

	res := e.Observe(Sample{Progress: 0.10, TimestampSeconds: 100})
	require.Equal(t, KindIndeterminate, res.Kind)
	_, ok := res.ETA()
	require.False(t, ok)
}

func TestObserveLinearEstimate(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.10, TimestampSeconds: 0})

	res := e.Observe(Sample{Progress: 0.20, TimestampSeconds: 100})
	eta, ok := res.ETA()
	require.True(t, ok)
	require.InDelta(t, 800, eta, 1e-6)
}

func TestObserveComplete(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.10, TimestampSeconds: 0})

	require.Equal(t, Complete(), e.Observe(Sample{Progress: 1.0, TimestampSeconds: 900}))
}

func TestObserveExtrapolatesFromBaselineNotPreviousSample(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.10, TimestampSeconds: 0})
	e.Observe(Sample{Progress: 0.20, TimestampSeconds: 100})

	// Against the previous sample the rate would be 100s/0.1; against the
	// baseline it is 200s/0.2.
	res := e.Observe(Sample{Progress: 0.30, TimestampSeconds: 200})
	eta, ok := res.ETA()
	require.True(t, ok)
	require.InDelta(t, 700, eta, 1e-6)

	base, _ := e.Baseline()
	require.Equal(t, Sample{Progress: 0.10, TimestampSeconds: 0}, base)
}

func TestObserveRegressionDoesNotPanic(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.50, TimestampSeconds: 0})

	res := e.Observe(Sample{Progress: 0.40, TimestampSeconds: 60})
	eta, ok := res.ETA()
	require.True(t, ok)
	require.Less(t, eta, 0.0)
}

func TestObserveZeroRemainingBelowThresholdIsEstimate(t *testing.T) {
	t.Parallel()

	e := New()
	e.Observe(Sample{Progress: 0.10, TimestampSeconds: 50})

	// No elapsed time collapses the rate to zero, but progress is far from done.
	res := e.Observe(Sample{Progress: 0.20, TimestampSeconds: 50})
	require.Equal(t, Estimate(0), res)
}

func TestBaselineUnsetOnFreshEstimator(t *testing.T) {
	t.Parallel()

	var e Estimator
	_, ok := e.Baseline()
	require.False(t, ok)
}

func TestObserveConcurrentKeepsSingleBaseline(t *testing.T) {
	t.Parallel()

	e := New()
	var wg sync.WaitGroup
	pending := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := e.Observe(Sample{Progress: float64(i) / 100, TimestampSeconds: int64(i)})
			if res.Kind == KindPending {
				pending <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(pending)

	count := 0
	for range pending {
		count++
	}
	require.Equal(t, 1, count)
}

func TestResultString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pending", Pending().String())
	require.Equal(t, "estimate(800s)", Estimate(800).String())
}
