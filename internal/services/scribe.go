// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/o11y"
	"github.com/schildwaechter/solarcourier/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ParseTelemetry reads the inverter's {KEY:value&KEY:value} body.
// Values keep everything after the first colon, bare keys map to nil, the last duplicate wins.
func ParseTelemetry(body string) (result types.TelemetryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PayloadError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	if !utf8.ValidString(body) {
		return nil, &PayloadError{Cause: errors.New("body is not valid UTF-8")}
	}

	stripped := strings.Trim(body, "{}\n")
	if strings.TrimSpace(stripped) == "" {
		return nil, ErrEmptyPayload
	}

	result = make(types.TelemetryResult)
	for _, item := range strings.Split(stripped, "&") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		key, value, found := strings.Cut(item, ":")
		if !found {
			result[item] = nil
			continue
		}
		result[key] = &value
	}
	return result, nil
}

// FocusedScribe turns the inverter body into telemetry
func FocusedScribe(ctx context.Context, body string) (types.TelemetryResult, error) {
	ctx, span := otel.Tracer(config.AppName).Start(ctx, "FocusedScribe")
	defer span.End()

	result, err := ParseTelemetry(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrEmptyPayload) {
			o11y.Logger.WarnContext(ctx, "Received empty response from inverter", o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
		} else {
			o11y.Logger.ErrorContext(ctx, "Error parsing response data: "+err.Error(), o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("telemetry.points", len(result)))
	return result, nil
}
