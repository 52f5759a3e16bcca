package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the payload published for each visual event.
type Notification struct {
	SessionID  string    `json:"session_id"`
	Stage      string    `json:"stage"`
	Progress   float64   `json:"progress"`
	Percent    float64   `json:"percent"`
	Style      string    `json:"style"`
	Text       string    `json:"text,omitempty"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
	TS         time.Time `json:"ts"`
}

// PublisherSink forwards visual events to a topic.
type PublisherSink struct {
	publisher Publisher
	topic     string
}

// NewPublisherSink builds a sink publishing to topic.
func NewPublisherSink(publisher Publisher, topic string) *PublisherSink {
	return &PublisherSink{publisher: publisher, topic: topic}
}

// Consume publishes every visual event of the batch. Failures do not stop the
// remaining publishes; they are joined into the returned error.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Visual() {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, toNotification(evt)); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Stage, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}

func toNotification(evt progress.Event) Notification {
	return Notification{
		SessionID:  evt.SessionUUID().String(),
		Stage:      string(evt.Stage),
		Progress:   evt.Progress,
		Percent:    evt.Percent,
		Style:      string(evt.Style),
		Text:       evt.Text,
		ETASeconds: evt.ETA.Seconds(),
		TS:         evt.TS,
	}
}
