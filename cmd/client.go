package cmd

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JakeFAU/cyphernode-status/internal/config"
)

// newStatusClient returns the traced client used for status polls and
// gatekeeper calls.
func newStatusClient(cfg config.Config) *http.Client {
	return &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
