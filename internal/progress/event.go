package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the poll outcome represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBaseline        Stage = "BASELINE"
	StageEstimate        Stage = "ESTIMATE"
	StageIndeterminate   Stage = "INDETERMINATE"
	StageComplete        Stage = "COMPLETE"
	StageConnectionError Stage = "CONNECTION_ERROR"
)

// Style is the visual state of the progress bar.
type Style string

// Supported bar styles.
const (
	StyleActive   Style = "active"
	StyleComplete Style = "complete"
	StyleError    Style = "error"
)

// Event captures one presenter update.
type Event struct {
	// SessionID identifies the tracking session (one baseline) in UUID form.
	SessionID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which poll outcome occurred.
	Stage Stage
	// Progress is the truncated verification fraction; zero for connection errors.
	Progress float64
	// Percent is the bar width in percent.
	Percent float64
	// Style is the bar style; empty for the non-visual baseline stage.
	Style Style
	// Text is the status line. Empty means the previous text is kept.
	Text string
	// ETA is the remaining time for StageEstimate.
	ETA time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBaseline:
	case StageEstimate, StageIndeterminate, StageComplete, StageConnectionError:
		if e.Style == "" {
			return fmt.Errorf("%s requires a style", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Visual reports whether the event should change what a presenter displays.
func (e Event) Visual() bool {
	return e.Stage != StageBaseline
}

// SessionUUID converts the binary session ID to uuid.UUID.
func (e Event) SessionUUID() uuid.UUID {
	return uuid.UUID(e.SessionID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
