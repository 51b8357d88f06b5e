// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/o11y"

	"github.com/icholy/digest"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultUpstreamTimeout bounds a whole inverter call
const DefaultUpstreamTimeout = 30 * time.Second

// Fetcher gets the raw answer for an inverter URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (statusCode int, body string, err error)
}

// NimbleCourier talks to the inverter with digest auth, one attempt per call
type NimbleCourier struct {
	client *http.Client
}

func NewNimbleCourier(identity config.Identity, timeout time.Duration) *NimbleCourier {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &NimbleCourier{
		client: &http.Client{
			Timeout: timeout,
			Transport: &digest.Transport{
				Username:  identity.Username,
				Password:  identity.Password,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		},
	}
}

// Fetch returns status and body; the body is only read for a 200
func (c *NimbleCourier) Fetch(ctx context.Context, target string) (int, string, error) {
	ctx, span := otel.Tracer(config.AppName).Start(ctx, "NimbleCourier")
	defer span.End()

	fail := func(kind UpstreamKind, err error) (int, string, error) {
		upstreamErr := &UpstreamError{Kind: kind, Cause: err}
		span.RecordError(upstreamErr)
		span.SetStatus(codes.Error, upstreamErr.Error())
		return 0, "", upstreamErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(Network, withoutURL(err))
	}

	// Inject TraceParent to Context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(classifyTransportError(err), withoutURL(err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		o11y.Logger.DebugContext(ctx, "Inverter refused the courier", "status", resp.StatusCode, o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
		return resp.StatusCode, "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(classifyTransportError(err), err)
	}
	return resp.StatusCode, string(body), nil
}

// withoutURL drops the request URL from client errors, it carries the session token
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// classifyTransportError sorts client errors into connection, timeout and other failures.
// Failures while dialing count as connection failures even if they were timeouts.
func classifyTransportError(err error) UpstreamKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Connection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Connection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Connection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return Network
}
