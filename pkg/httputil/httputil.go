// Package httputil provides shared HTTP client construction utilities.
// It centralizes timeout defaults and client creation so that every
// outbound caller uses consistent configuration.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Standard timeout defaults used across the project.
const (
	// DefaultWebhookTimeout is the HTTP timeout for outbound notification
	// webhooks. These are small JSON posts to a single endpoint.
	DefaultWebhookTimeout = 10 * time.Second

	// DefaultGatewayTimeout is the HTTP timeout for Discord REST calls.
	DefaultGatewayTimeout = 20 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewTracedClient returns a client whose transport records an OpenTelemetry
// client span per request and propagates trace context in the headers.
func NewTracedClient(timeout time.Duration, operation string) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return operation + " " + r.Method
			}),
		),
	}
}
