// Package poller samples the node's verification progress on a fixed cadence
// and feeds each reading through the ETA estimator to the presenter.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/estimator"
	idgen "github.com/JakeFAU/cyphernode-status/internal/id/uuid"
	"github.com/JakeFAU/cyphernode-status/internal/metrics"
	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

// Interval is the fixed delay between poll starts.
const Interval = 5 * time.Second

// StatusPath is the status endpoint, relative to the page base.
const StatusPath = "verificationprogress"

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	tracerName     = "github.com/JakeFAU/cyphernode-status/internal/poller"
)

var (
	// ErrTransport marks network failures and non-200 responses.
	ErrTransport = errors.New("poller: status endpoint unreachable")
	// ErrParse marks a 200 response without a numeric verificationprogress.
	ErrParse = errors.New("poller: malformed status response")
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Options wires a Poller's collaborators. Zero values get defaults.
type Options struct {
	Client    *http.Client
	Clock     Clock
	Emitter   progress.Emitter
	Logger    *zap.Logger
	SessionID uuid.UUID
	Tracer    trace.Tracer
}

// Poller owns one tracking session: a status URL and the estimator holding
// the session's baseline.
type Poller struct {
	url       string
	client    *http.Client
	clock     Clock
	emitter   progress.Emitter
	logger    *zap.Logger
	tracer    trace.Tracer
	session   [16]byte
	estimator *estimator.Estimator
	interval  time.Duration
}

type statusPayload struct {
	VerificationProgress *float64 `json:"verificationprogress"`
}

// ResolveStatusURL builds the absolute status URL. When base is set the
// status path is appended to it verbatim, so base conventionally ends with a
// slash; otherwise the root-relative path is used. Relative results are
// resolved against origin.
func ResolveStatusURL(origin, base string) (string, error) {
	ref := "/" + StatusPath
	if base != "" {
		ref = base + StatusPath
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse status reference %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if !originURL.IsAbs() || originURL.Host == "" {
		return "", fmt.Errorf("origin %q must be an absolute URL", origin)
	}
	return originURL.ResolveReference(refURL).String(), nil
}

// New builds a Poller for statusURL with a fresh estimator.
func New(statusURL string, opts Options) (*Poller, error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return nil, fmt.Errorf("parse status url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("status url %q must be absolute", statusURL)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = systemClock{}
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = progress.EmitterFunc(func(progress.Event) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	session := opts.SessionID
	if session == uuid.Nil {
		session, err = idgen.NewGenerator().NewSessionID()
		if err != nil {
			return nil, err
		}
	}

	return &Poller{
		url:       u.String(),
		client:    client,
		clock:     clk,
		emitter:   emitter,
		logger:    logger.With(zap.String("session_id", session.String())),
		tracer:    tracer,
		session:   progress.UUIDToBytes(session),
		estimator: estimator.New(),
		interval:  Interval,
	}, nil
}

// URL returns the resolved status URL.
func (p *Poller) URL() string {
	return p.url
}

// SessionID returns the tracking session's ID.
func (p *Poller) SessionID() uuid.UUID {
	return uuid.UUID(p.session)
}

// Estimator exposes the session estimator.
func (p *Poller) Estimator() *estimator.Estimator {
	return p.estimator
}

// Fetch performs one GET against the status URL. The sample's progress is
// truncated to five decimals and stamped with the arrival time in whole
// seconds. Errors wrap ErrTransport or ErrParse.
func (p *Poller) Fetch(ctx context.Context) (estimator.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return estimator.Sample{}, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return estimator.Sample{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close status body", zap.Error(cerr))
		}
	}()
	arrived := p.clock.Now()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return estimator.Sample{}, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return estimator.Sample{}, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return estimator.Sample{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if payload.VerificationProgress == nil {
		return estimator.Sample{}, fmt.Errorf("%w: verificationprogress missing", ErrParse)
	}

	return estimator.Sample{
		Progress:         truncate(*payload.VerificationProgress),
		TimestampSeconds: arrived.Unix(),
	}, nil
}

// Tick runs one poll-and-update cycle. Parse failures are logged and
// skipped; transport failures emit a connection error and leave the
// estimator untouched.
func (p *Poller) Tick(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "poller.tick", trace.WithAttributes(attribute.String("status.url", p.url)))
	defer span.End()

	start := time.Now()
	sample, err := p.Fetch(ctx)
	switch {
	case err == nil:
		metrics.ObservePoll(metrics.PollOK, time.Since(start))
		res := p.estimator.Observe(sample)
		span.SetAttributes(
			attribute.Float64("verification.progress", sample.Progress),
			attribute.String("estimate.kind", string(res.Kind)),
		)
		p.logger.Debug("verification progress sampled",
			zap.Float64("progress", sample.Progress),
			zap.Stringer("result", res),
		)
		p.emitter.Emit(progress.Render(p.session, p.clock.Now(), sample, res))
	case errors.Is(err, ErrParse):
		metrics.ObservePoll(metrics.PollParseError, time.Since(start))
		span.RecordError(err)
		p.logger.Warn("skipping unparsable status response", zap.Error(err))
	default:
		if ctx.Err() != nil {
			return
		}
		metrics.ObservePoll(metrics.PollTransportError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "status endpoint unreachable")
		p.logger.Warn("status endpoint unreachable", zap.Error(err))
		p.emitter.Emit(progress.ConnectionError(p.session, p.clock.Now(), err))
	}
}

// Run polls immediately and then every Interval until ctx is done. Each tick
// runs on its own goroutine; a slow tick never delays or cancels the next.
// Run waits for in-flight ticks before returning.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Tick(ctx)
		}()
	}

	p.logger.Info("verification polling started",
		zap.String("url", p.url),
		zap.Duration("interval", p.interval),
	)
	launch()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			p.logger.Info("verification polling stopped")
			return
		case <-ticker.C:
			launch()
		}
	}
}

func truncate(v float64) float64 {
	return math.Trunc(v*1e5) / 1e5
}
