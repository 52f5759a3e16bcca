package api

import (
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/cyphernode-status/internal/metrics"
)

const (
	defaultUpstreamTimeout = 10 * time.Second
	maxUpstreamBody        = 1 << 20
)

// Signer issues Authorization header values for gatekeeper calls.
type Signer interface {
	BearerFromKey(label string) (string, error)
}

// StatusProxy forwards status requests to the gatekeeper. Every upstream
// request carries a fresh bearer token when a Signer is configured.
type StatusProxy struct {
	upstream string
	signer   Signer
	keyLabel string
	client   *http.Client
	logger   *zap.Logger
}

// NewStatusProxy builds a proxy for upstream. A nil client gets a traced
// client with a ten second timeout.
func NewStatusProxy(upstream string, signer Signer, keyLabel string, client *http.Client, logger *zap.Logger) *StatusProxy {
	if client == nil {
		client = &http.Client{
			Timeout:   defaultUpstreamTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusProxy{
		upstream: upstream,
		signer:   signer,
		keyLabel: keyLabel,
		client:   client,
		logger:   logger,
	}
}

// Configured reports whether an upstream URL is set.
func (p *StatusProxy) Configured() bool {
	return p != nil && p.upstream != ""
}

// ServeHTTP passes the upstream status code and body through as JSON. A
// missing key or an unreachable upstream yields 503.
func (p *StatusProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.Configured() {
		writeError(w, http.StatusServiceUnavailable, "status upstream not configured")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, p.upstream, nil)
	if err != nil {
		p.logger.Error("build upstream request", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "status upstream unavailable")
		return
	}
	if p.signer != nil {
		bearer, err := p.signer.BearerFromKey(p.keyLabel)
		if err != nil {
			p.logger.Warn("sign upstream request", zap.String("key_label", p.keyLabel), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "gatekeeper key unavailable")
			return
		}
		req.Header.Set("Authorization", bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.ObserveUpstream(p.upstream, 0)
		p.logger.Warn("status upstream unreachable", zap.String("upstream", p.upstream), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "status upstream unavailable")
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close upstream body", zap.Error(cerr))
		}
	}()
	metrics.ObserveUpstream(p.upstream, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		p.logger.Warn("read upstream body", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "status upstream unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		p.logger.Debug("write proxied body", zap.Error(err))
	}
}
