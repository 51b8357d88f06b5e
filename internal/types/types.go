// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

// Package types defines the data structures used.
package types

// RequestParameters is what the clerk accepted from one /getinfo call.
// Codes is the getParams tail exactly as the caller sent it.
type RequestParameters struct {
	StartDate       string
	EndDate         string
	SequenceCounter int
	Codes           string
}

// TelemetryResult maps telemetry codes to their values; bare codes map to nil.
type TelemetryResult map[string]*string

type HealthStatus struct {
	Status string `json:"status"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

type Banner struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Node    string `json:"node"`
}
