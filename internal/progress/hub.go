package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls how the Hub hands events to its sinks.
type Config struct {
	// Backlog caps the events queued while sinks are busy (default 16). When
	// the backlog is full the oldest queued event is dropped, so a slow
	// presenter skips straight to the newest state.
	Backlog int
	// SinkTimeout bounds every Consume and Close call (default 5s).
	SinkTimeout time.Duration
	// BaseContext is the parent of sink contexts. Its values reach the sinks
	// but its cancellation does not, so the drain on Close still delivers.
	BaseContext context.Context
	// Logger receives delivery warnings.
	Logger *zap.Logger
}

const (
	defaultBacklog     = 16
	defaultSinkTimeout = 5 * time.Second
	dropLogInterval    = 30 * time.Second
)

// Hub delivers presenter events to sinks on one goroutine, in emission order.
// Each Consume call receives everything queued since the previous one; at one
// event per poll tick that is almost always a single event. Emit never blocks.
type Hub struct {
	cfg     Config
	sinks   []Sink
	logger  *zap.Logger
	baseCtx context.Context

	mu       sync.Mutex
	pending  []Event
	dropped  int
	lastWarn time.Time
	closed   bool

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewHub starts the delivery goroutine for sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		baseCtx: context.WithoutCancel(base),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit queues evt for delivery. Invalid events and events emitted after Close
// are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err), zap.String("stage", string(evt.Stage)))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	var dropped int
	if len(h.pending) >= h.cfg.Backlog {
		h.pending = h.pending[1:]
		h.dropped++
		if now := time.Now(); now.Sub(h.lastWarn) >= dropLogInterval {
			dropped, h.dropped, h.lastWarn = h.dropped, 0, now
		}
	}
	h.pending = append(h.pending, evt)
	h.mu.Unlock()

	if dropped > 0 {
		h.logger.Warn("sinks are behind; dropped stale progress events", zap.Int("dropped", dropped))
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events, delivers what is still queued, closes the
// sinks and waits for the delivery goroutine. ctx bounds only the wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case <-h.wake:
			h.deliver(h.take())
		case <-h.stopCh:
			h.deliver(h.take())
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) take() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	batch := h.pending
	h.pending = nil
	return batch
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err), zap.Int("events", len(batch)))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.SinkTimeout)
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
		cancel()
	}
}
