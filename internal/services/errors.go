// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"errors"
	"fmt"
)

// ParamErrorKind tells which request parameter check failed
type ParamErrorKind int

const (
	MissingParameter ParamErrorKind = iota
	EmptyParameter
	NoValidParameters
	InvalidParameter
	InvalidFormat
	InvalidSequenceCounter
	SequenceCounterOutOfRange
)

func (k ParamErrorKind) String() string {
	switch k {
	case MissingParameter:
		return "missing_parameter"
	case EmptyParameter:
		return "empty_parameter"
	case NoValidParameters:
		return "no_valid_parameters"
	case InvalidParameter:
		return "invalid_parameter"
	case InvalidFormat:
		return "invalid_format"
	case InvalidSequenceCounter:
		return "invalid_sequence_counter"
	case SequenceCounterOutOfRange:
		return "sequence_counter_out_of_range"
	}
	return "unknown"
}

// ParameterError is a rejected request parameter; Message is safe to show to the caller
type ParameterError struct {
	Kind    ParamErrorKind
	Message string
}

func (e *ParameterError) Error() string {
	return e.Message
}

// UpstreamKind distinguishes the ways the inverter can fail to answer
type UpstreamKind int

const (
	Network UpstreamKind = iota
	Connection
	Timeout
)

func (k UpstreamKind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	}
	return "network"
}

// UpstreamError is a transport failure talking to the inverter
type UpstreamError struct {
	Kind  UpstreamKind
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inverter %s failure: %v", e.Kind, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StatusError is an inverter answer with a status other than 200
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inverter answered with status %d", e.StatusCode)
}

// ErrEmptyPayload means the inverter answered 200 without any data
var ErrEmptyPayload = errors.New("empty response from inverter")

// PayloadError means the inverter body could not be read as telemetry
type PayloadError struct {
	Cause error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed inverter response: %v", e.Cause)
}

func (e *PayloadError) Unwrap() error {
	return e.Cause
}
