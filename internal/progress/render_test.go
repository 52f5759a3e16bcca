package progress

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cyphernode-status/internal/estimator"
)

func TestRender(t *testing.T) {
	t.Parallel()

	session := UUIDToBytes(uuid.New())
	ts := time.Unix(1700000000, 0).UTC()

	testCases := []struct {
		name      string
		sample    estimator.Sample
		result    estimator.Result
		wantStage Stage
		wantStyle Style
		wantText  string
		wantETA   time.Duration
	}{
		{
			name:      "pending is baseline",
			sample:    estimator.Sample{Progress: 0.1},
			result:    estimator.Pending(),
			wantStage: StageBaseline,
		},
		{
			name:      "estimate",
			sample:    estimator.Sample{Progress: 0.2},
			result:    estimator.Estimate(800),
			wantStage: StageEstimate,
			wantStyle: StyleActive,
			wantText:  "Verification complete in 13 minutes",
			wantETA:   800 * time.Second,
		},
		{
			name:      "complete",
			sample:    estimator.Sample{Progress: 1},
			result:    estimator.Complete(),
			wantStage: StageComplete,
			wantStyle: StyleComplete,
			wantText:  TextComplete,
		},
		{
			name:      "indeterminate holds text",
			sample:    estimator.Sample{Progress: 0.5},
			result:    estimator.Indeterminate(),
			wantStage: StageIndeterminate,
			wantStyle: StyleActive,
		},
		{
			name:      "indeterminate at threshold shows complete",
			sample:    estimator.Sample{Progress: 0.99999},
			result:    estimator.Indeterminate(),
			wantStage: StageIndeterminate,
			wantStyle: StyleComplete,
			wantText:  TextComplete,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			evt := Render(session, ts, tc.sample, tc.result)
			require.Equal(t, tc.wantStage, evt.Stage)
			require.Equal(t, tc.wantStyle, evt.Style)
			require.Equal(t, tc.wantText, evt.Text)
			require.Equal(t, tc.wantETA, evt.ETA)
			require.InDelta(t, tc.sample.Progress*100, evt.Percent, 1e-9)
			require.NoError(t, evt.Validate())
			require.Equal(t, tc.wantStage != StageBaseline, evt.Visual())
		})
	}
}

func TestRenderSaturatesHugeETA(t *testing.T) {
	t.Parallel()

	evt := Render(UUIDToBytes(uuid.New()), time.Now(), estimator.Sample{Progress: 0.1}, estimator.Estimate(1e30))
	require.Equal(t, time.Duration(math.MaxInt64), evt.ETA)
	require.True(t, strings.HasPrefix(evt.Text, "Verification complete in "))
	require.True(t, strings.HasSuffix(evt.Text, " years"))
}

func TestConnectionError(t *testing.T) {
	t.Parallel()

	session := UUIDToBytes(uuid.New())
	evt := ConnectionError(session, time.Now(), errors.New("dial tcp: refused"))

	require.Equal(t, StageConnectionError, evt.Stage)
	require.Equal(t, StyleError, evt.Style)
	require.InDelta(t, 100.0, evt.Percent, 1e-9)
	require.Equal(t, "Error connecting to cyphernode", evt.Text)
	require.Equal(t, "dial tcp: refused", evt.Note)
	require.NoError(t, evt.Validate())
	require.Equal(t, uuid.UUID(session), evt.SessionUUID())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	session := UUIDToBytes(uuid.New())
	now := time.Now()

	require.ErrorContains(t, Event{TS: now, Stage: StageEstimate}.Validate(), "session id")
	require.ErrorContains(t, Event{SessionID: session, Stage: StageEstimate}.Validate(), "timestamp")
	require.ErrorContains(t, Event{SessionID: session, TS: now, Stage: "BOGUS"}.Validate(), "unknown stage")
	require.ErrorContains(t, Event{SessionID: session, TS: now, Stage: StageComplete}.Validate(), "style")
	require.NoError(t, Event{SessionID: session, TS: now, Stage: StageBaseline}.Validate())
}
