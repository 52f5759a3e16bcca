package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

// View is what a page presenter currently displays.
type View struct {
	Percent   float64        `json:"percent"`
	Style     progress.Style `json:"style"`
	Text      string         `json:"text"`
	Stage     progress.Stage `json:"stage,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ViewSink keeps the latest View for the status page and its JSON endpoint.
// Baseline events leave the view untouched, and events without text keep the
// previous text.
type ViewSink struct {
	mu   sync.RWMutex
	view View
}

// NewViewSink returns a sink showing an empty active bar.
func NewViewSink() *ViewSink {
	return &ViewSink{view: View{Style: progress.StyleActive}}
}

// Consume applies each visual event in order.
func (s *ViewSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if !evt.Visual() {
			continue
		}
		s.view.Percent = evt.Percent
		s.view.Style = evt.Style
		s.view.Stage = evt.Stage
		s.view.UpdatedAt = evt.TS
		if evt.Text != "" {
			s.view.Text = evt.Text
		}
	}
	return nil
}

// Snapshot returns a copy of the current view.
func (s *ViewSink) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Close implements the Sink interface; it performs no action.
func (s *ViewSink) Close(context.Context) error {
	return nil
}
