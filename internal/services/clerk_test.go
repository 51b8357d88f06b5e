// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schildwaechter/solarcourier/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allCodes = "DST&IBE&ICE&IDC&IDD&IDR&IEVC&IEVD&IEVR&IG0&IGE&ISE&TG0&V2HST"

var clerkNow = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.Local)

func assertParamKind(t *testing.T, err error, kind ParamErrorKind) *ParameterError {
	t.Helper()
	var paramErr *ParameterError
	require.True(t, errors.As(err, &paramErr), "expected a ParameterError, got %v", err)
	assert.Equal(t, kind, paramErr.Kind, "kind %s", paramErr.Kind)
	return paramErr
}

func TestDiligentClerk(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		want     types.RequestParameters
	}{
		{
			name:     "all parameters",
			rawQuery: "startDate=20240101&endDate=20240102&sequenceCounter=5&getParams=V2HST&DST",
			want:     types.RequestParameters{StartDate: "20240101", EndDate: "20240102", SequenceCounter: 5, Codes: "V2HST&DST"},
		},
		{
			name:     "defaults",
			rawQuery: "getParams=IG0",
			want:     types.RequestParameters{StartDate: "20250615", EndDate: "20250615", SequenceCounter: 0, Codes: "IG0"},
		},
		{
			name:     "upper bound counter",
			rawQuery: "sequenceCounter=65535&getParams=DST",
			want:     types.RequestParameters{StartDate: "20250615", EndDate: "20250615", SequenceCounter: 65535, Codes: "DST"},
		},
		{
			name:     "codes keep their whitespace",
			rawQuery: "getParams=  IG0 & IBE  ",
			want:     types.RequestParameters{StartDate: "20250615", EndDate: "20250615", Codes: "  IG0 & IBE  "},
		},
		{
			name:     "every code",
			rawQuery: "getParams=" + allCodes,
			want:     types.RequestParameters{StartDate: "20250615", EndDate: "20250615", Codes: allCodes},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiligentClerk(context.Background(), tt.rawQuery, clerkNow, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiligentClerkRejects(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		kind     ParamErrorKind
		message  string
	}{
		{
			name:     "no getParams",
			rawQuery: "startDate=20240101",
			kind:     MissingParameter,
			message:  "getParams is required. Please specify the parameters to retrieve.",
		},
		{
			name:     "empty getParams",
			rawQuery: "getParams=",
			kind:     EmptyParameter,
			message:  "getParams cannot be empty",
		},
		{
			name:     "blank getParams",
			rawQuery: "getParams=   ",
			kind:     EmptyParameter,
			message:  "getParams cannot be empty",
		},
		{
			name:     "only separators",
			rawQuery: "getParams=& &&",
			kind:     NoValidParameters,
			message:  "getParams must contain at least one valid parameter",
		},
		{
			name:     "unknown code",
			rawQuery: "getParams=INVALID_PARAM",
			kind:     InvalidParameter,
			message:  "Invalid getParams: INVALID_PARAM. Valid parameters are: " + allCodes,
		},
		{
			name:     "unknown codes among known ones",
			rawQuery: "getParams=FOO&DST&BAR",
			kind:     InvalidParameter,
			message:  "Invalid getParams: FOO, BAR. Valid parameters are: " + allCodes,
		},
		{
			name:     "dashed date",
			rawQuery: "startDate=2024-01-01&getParams=IG0",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "short end date",
			rawQuery: "endDate=2024011&getParams=IG0",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "empty date",
			rawQuery: "startDate=&getParams=IG0",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "word counter",
			rawQuery: "sequenceCounter=abc&getParams=IG0",
			kind:     InvalidSequenceCounter,
			message:  `Sequence counter must be an integer, got: "abc"`,
		},
		{
			name:     "negative counter",
			rawQuery: "sequenceCounter=-1&getParams=IG0",
			kind:     SequenceCounterOutOfRange,
			message:  "Sequence counter must be between 0 and 65535, got: -1",
		},
		{
			name:     "counter one too large",
			rawQuery: "sequenceCounter=65536&getParams=IG0",
			kind:     SequenceCounterOutOfRange,
			message:  "Sequence counter must be between 0 and 65535, got: 65536",
		},
		{
			name:     "counter beyond int64",
			rawQuery: "sequenceCounter=99999999999999999999&getParams=IG0",
			kind:     SequenceCounterOutOfRange,
			message:  "Sequence counter must be between 0 and 65535, got: 99999999999999999999",
		},
		{
			name:     "counter with broken escape",
			rawQuery: "sequenceCounter=abc%&getParams=DST",
			kind:     InvalidSequenceCounter,
			message:  `Sequence counter must be an integer, got: "abc%"`,
		},
		{
			name:     "counter with semicolon",
			rawQuery: "sequenceCounter=99999;&getParams=DST",
			kind:     InvalidSequenceCounter,
			message:  `Sequence counter must be an integer, got: "99999;"`,
		},
		{
			name:     "date with broken escape",
			rawQuery: "startDate=2024%ZZ01&getParams=DST",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "date with semicolon",
			rawQuery: "startDate=20240101;x&getParams=DST",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "end date with broken escape",
			rawQuery: "endDate=%G0240101&getParams=DST",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "dates are checked before codes",
			rawQuery: "startDate=yesterday&getParams=NOPE",
			kind:     InvalidFormat,
			message:  "Date format must be YYYYMMDD",
		},
		{
			name:     "counter is checked before codes",
			rawQuery: "sequenceCounter=x&getParams=NOPE",
			kind:     InvalidSequenceCounter,
			message:  `Sequence counter must be an integer, got: "x"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DiligentClerk(context.Background(), tt.rawQuery, clerkNow, nil)
			paramErr := assertParamKind(t, err, tt.kind)
			assert.Equal(t, tt.message, paramErr.Error())
		})
	}
}

func TestDiligentClerkRollingCounter(t *testing.T) {
	counter := NewRollingCounter(65535)

	first, err := DiligentClerk(context.Background(), "getParams=DST", clerkNow, counter)
	require.NoError(t, err)
	assert.Equal(t, 65535, first.SequenceCounter)

	second, err := DiligentClerk(context.Background(), "getParams=DST", clerkNow, counter)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SequenceCounter)

	// an explicit counter leaves the rolling one alone
	explicit, err := DiligentClerk(context.Background(), "sequenceCounter=42&getParams=DST", clerkNow, counter)
	require.NoError(t, err)
	assert.Equal(t, 42, explicit.SequenceCounter)
	assert.Equal(t, 1, counter.Next())
}

func TestDiligentClerkUnescapesNamedParameters(t *testing.T) {
	got, err := DiligentClerk(context.Background(), "start%44ate=2024%30101&sequenceCounter=%31%32&getParams=DST", clerkNow, nil)
	require.NoError(t, err)
	assert.Equal(t, types.RequestParameters{StartDate: "20240101", EndDate: "20250615", SequenceCounter: 12, Codes: "DST"}, got)
}

func TestNamedParams(t *testing.T) {
	got := namedParams("a=1&b=%zz&&c&a=2&d=x;y")
	assert.Equal(t, map[string]string{"a": "1", "b": "%zz", "c": "", "d": "x;y"}, got)
}

func TestExtractCodes(t *testing.T) {
	codes, err := ExtractCodes("startDate=20240101&getParams=V2HST&DST")
	require.NoError(t, err)
	assert.Equal(t, "V2HST&DST", codes)

	// everything behind the marker belongs to the codes
	codes, err = ExtractCodes("getParams=DST&sequenceCounter=3")
	require.NoError(t, err)
	assert.Equal(t, "DST&sequenceCounter=3", codes)

	_, err = ExtractCodes("")
	assertParamKind(t, err, MissingParameter)
}

func TestValidateDate(t *testing.T) {
	got, err := ValidateDate("", false, clerkNow)
	require.NoError(t, err)
	assert.Equal(t, "20250615", got)

	got, err = ValidateDate("19991231", true, clerkNow)
	require.NoError(t, err)
	assert.Equal(t, "19991231", got)

	for _, raw := range []string{"1999123", "199912311", "1999123a", "１９９９１２３１"} {
		_, err := ValidateDate(raw, true, clerkNow)
		assertParamKind(t, err, InvalidFormat)
	}
}

func TestValidateSequenceCounter(t *testing.T) {
	got, err := ValidateSequenceCounter("", false)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = ValidateSequenceCounter("0", true)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = ValidateSequenceCounter("", true)
	assertParamKind(t, err, InvalidSequenceCounter)

	_, err = ValidateSequenceCounter("1.5", true)
	assertParamKind(t, err, InvalidSequenceCounter)
}

func TestParamErrorKindString(t *testing.T) {
	assert.Equal(t, "missing_parameter", MissingParameter.String())
	assert.Equal(t, "sequence_counter_out_of_range", SequenceCounterOutOfRange.String())
	assert.Equal(t, "unknown", ParamErrorKind(99).String())
}
