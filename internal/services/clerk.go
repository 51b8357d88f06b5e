// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/o11y"
	"github.com/schildwaechter/solarcourier/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	getParamsMarker    = "getParams="
	maxSequenceCounter = 65535
)

// TelemetryCodes are the values the inverter knows how to report
var TelemetryCodes = map[string]struct{}{
	"V2HST": {}, "DST": {}, "IEVD": {}, "IEVC": {}, "IEVR": {}, "IG0": {}, "IBE": {},
	"ISE": {}, "ICE": {}, "TG0": {}, "IDD": {}, "IDC": {}, "IDR": {}, "IGE": {},
}

var (
	sortedTelemetryCodes = slices.Sorted(maps.Keys(TelemetryCodes))
	datePattern          = regexp.MustCompile(`^[0-9]{8}$`)
)

// ValidateDate checks for YYYYMMDD, absent means today
func ValidateDate(raw string, present bool, now time.Time) (string, error) {
	if !present {
		return now.Format("20060102"), nil
	}
	if !datePattern.MatchString(raw) {
		return "", &ParameterError{Kind: InvalidFormat, Message: "Date format must be YYYYMMDD"}
	}
	return raw, nil
}

// ValidateSequenceCounter checks the 16 bit counter, absent means 0
func ValidateSequenceCounter(raw string, present bool) (int, error) {
	if !present {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, &ParameterError{
				Kind:    SequenceCounterOutOfRange,
				Message: fmt.Sprintf("Sequence counter must be between 0 and %d, got: %s", maxSequenceCounter, raw),
			}
		}
		return 0, &ParameterError{
			Kind:    InvalidSequenceCounter,
			Message: fmt.Sprintf("Sequence counter must be an integer, got: %q", raw),
		}
	}
	if value < 0 || value > maxSequenceCounter {
		return 0, &ParameterError{
			Kind:    SequenceCounterOutOfRange,
			Message: fmt.Sprintf("Sequence counter must be between 0 and %d, got: %d", maxSequenceCounter, value),
		}
	}
	return int(value), nil
}

// ValidateCodes checks every &-separated code against TelemetryCodes.
// The trimmed tokens are only used for checking, the raw string is returned untouched.
func ValidateCodes(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &ParameterError{Kind: EmptyParameter, Message: "getParams cannot be empty"}
	}

	var tokens []string
	for _, token := range strings.Split(raw, "&") {
		if code := strings.TrimSpace(token); code != "" {
			tokens = append(tokens, code)
		}
	}
	if len(tokens) == 0 {
		return "", &ParameterError{Kind: NoValidParameters, Message: "getParams must contain at least one valid parameter"}
	}

	var invalid []string
	for _, code := range tokens {
		if _, ok := TelemetryCodes[code]; !ok {
			invalid = append(invalid, code)
		}
	}
	if len(invalid) > 0 {
		return "", &ParameterError{
			Kind: InvalidParameter,
			Message: fmt.Sprintf("Invalid getParams: %s. Valid parameters are: %s",
				strings.Join(invalid, ", "), strings.Join(sortedTelemetryCodes, "&")),
		}
	}
	return raw, nil
}

// ExtractCodes returns everything after getParams= in the raw query.
// The inverter wants getParams=A&B&C, which a query parser would split into separate keys.
func ExtractCodes(rawQuery string) (string, error) {
	_, tail, found := strings.Cut(rawQuery, getParamsMarker)
	if !found {
		return "", &ParameterError{
			Kind:    MissingParameter,
			Message: "getParams is required. Please specify the parameters to retrieve.",
		}
	}
	return tail, nil
}

// namedParams splits the raw query into key=value pairs, the first occurrence wins.
// Unlike url.ParseQuery nothing is dropped: a value that can't be unescaped is kept
// as sent, so it fails validation instead of looking absent.
func namedParams(rawQuery string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		if _, seen := params[key]; !seen {
			params[key] = value
		}
	}
	return params
}

// DiligentClerk checks the paperwork of a /getinfo request.
// With a counter, an absent sequenceCounter takes the counter's next value instead of 0.
func DiligentClerk(ctx context.Context, rawQuery string, now time.Time, counter *RollingCounter) (types.RequestParameters, error) {
	ctx, span := otel.Tracer(config.AppName).Start(ctx, "DiligentClerk")
	defer span.End()

	var params types.RequestParameters
	fail := func(err error) (types.RequestParameters, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o11y.Logger.WarnContext(ctx, "Parameter validation error: "+err.Error(), o11y.LoggerTraceAttr(ctx, span), o11y.LoggerSpanAttr(ctx, span))
		return params, err
	}

	query := namedParams(rawQuery)

	var err error
	startDate, hasStart := query["startDate"]
	params.StartDate, err = ValidateDate(startDate, hasStart, now)
	if err != nil {
		return fail(err)
	}
	endDate, hasEnd := query["endDate"]
	params.EndDate, err = ValidateDate(endDate, hasEnd, now)
	if err != nil {
		return fail(err)
	}

	sequenceCounter, hasCounter := query["sequenceCounter"]
	if counter != nil && !hasCounter {
		params.SequenceCounter = counter.Next()
	} else {
		params.SequenceCounter, err = ValidateSequenceCounter(sequenceCounter, hasCounter)
		if err != nil {
			return fail(err)
		}
	}

	rawCodes, err := ExtractCodes(rawQuery)
	if err != nil {
		return fail(err)
	}
	params.Codes, err = ValidateCodes(rawCodes)
	if err != nil {
		return fail(err)
	}

	span.SetAttributes(
		attribute.String("start_date", params.StartDate),
		attribute.String("end_date", params.EndDate),
		attribute.Int("sequence_counter", params.SequenceCounter),
	)
	return params, nil
}
