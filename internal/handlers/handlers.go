// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/o11y"
	"github.com/schildwaechter/solarcourier/internal/services"
	"github.com/schildwaechter/solarcourier/internal/types"

	"github.com/gofiber/fiber/v2"
	slogfiber "github.com/samber/slog-fiber"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Courier serves the public endpoints for one inverter
type Courier struct {
	identity  config.Identity
	fetcher   services.Fetcher
	vitals    *services.Vitals
	counter   *services.RollingCounter
	announcer services.Announcer
	now       func() time.Time
}

type Option func(*Courier)

// WithRollingCounter fills in absent sequence counters from the counter
func WithRollingCounter(counter *services.RollingCounter) Option {
	return func(c *Courier) {
		c.counter = counter
	}
}

// WithAnnouncer passes every successful reading on
func WithAnnouncer(announcer services.Announcer) Option {
	return func(c *Courier) {
		c.announcer = announcer
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Courier) {
		c.now = now
	}
}

func NewCourier(identity config.Identity, fetcher services.Fetcher, vitals *services.Vitals, opts ...Option) *Courier {
	courier := &Courier{
		identity: identity,
		fetcher:  fetcher,
		vitals:   vitals,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(courier)
	}
	if courier.vitals == nil {
		courier.vitals = &services.Vitals{}
	}
	return courier
}

func (cr *Courier) RegisterRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(types.Banner{
			Service: config.AppName,
			Version: config.BuildVersion,
			Node:    config.NodeName,
		})
	})

	app.Get("/getinfo", cr.handleGetinfo)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(types.HealthStatus{Status: "healthy"})
	})
}

func (cr *Courier) handleGetinfo(c *fiber.Ctx) error {
	ctx, span := otel.Tracer(config.AppName).Start(c.UserContext(), "GetinfoEndpoint")
	span.SetAttributes(attribute.String("RequestID", slogfiber.GetRequestIDFromContext(c.Context())))
	defer span.End()

	// the codes are taken from the undecoded query string
	rawQuery := string(c.Request().URI().QueryString())
	params, err := services.DiligentClerk(ctx, rawQuery, cr.now(), cr.counter)
	if err != nil {
		return cr.reject(ctx, c, span, err)
	}

	upstreamURL := services.BuildUpstreamURL(cr.identity, params)
	o11y.Logger.InfoContext(ctx, "Requesting data from inverter: "+services.LogURL(upstreamURL), o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))

	started := time.Now()
	status, body, err := cr.fetcher.Fetch(ctx, upstreamURL)
	elapsed := time.Since(started)
	if err != nil {
		outcome := "network"
		var upstreamErr *services.UpstreamError
		if errors.As(err, &upstreamErr) {
			outcome = upstreamErr.Kind.String()
		}
		o11y.RecordUpstream(ctx, outcome, elapsed)
		cr.vitals.Lost()
		return cr.reject(ctx, c, span, err)
	}
	span.SetAttributes(attribute.Int("upstream.status_code", status))

	if status != http.StatusOK {
		o11y.RecordUpstream(ctx, "status_"+strconv.Itoa(status), elapsed)
		cr.vitals.Answered()
		return cr.reject(ctx, c, span, &services.StatusError{StatusCode: status})
	}
	o11y.RecordUpstream(ctx, "ok", elapsed)
	cr.vitals.Answered()

	result, err := services.FocusedScribe(ctx, body)
	if err != nil {
		return cr.reject(ctx, c, span, err)
	}
	cr.vitals.Delivered(len(result))
	o11y.RecordTelemetryPoints(len(result))

	o11y.Logger.InfoContext(ctx, "Successfully retrieved "+strconv.Itoa(len(result))+" data points", o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
	if cr.announcer != nil {
		cr.announcer.Announce(ctx, cr.identity.SerialNumber, result)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// reject logs the failure and answers with the mapped status
func (cr *Courier) reject(ctx context.Context, c *fiber.Ctx, span trace.Span, err error) error {
	status, message := HandleError(err)
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	// the courier strips the upstream URL from its errors, nothing secret is left here
	if status >= http.StatusInternalServerError {
		o11y.Logger.ErrorContext(ctx, message+": "+err.Error(), "status", status, o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
	} else {
		o11y.Logger.WarnContext(ctx, message, "status", status, o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
	}
	return c.Status(status).JSON(types.ErrorReply{Error: message})
}
