// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"strconv"
	"strings"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/types"
)

const logURLLength = 50

// BuildUpstreamURL writes the inverter query in the exact order the device expects.
// Nothing is escaped, the parts are digits and allow-listed codes.
func BuildUpstreamURL(identity config.Identity, params types.RequestParameters) string {
	host := identity.DeviceIP
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	var b strings.Builder
	b.WriteString(host)
	b.WriteString("/getinfo.cgi?")
	b.WriteString(identity.SerialNumber)
	b.WriteByte('&')
	b.WriteString(identity.SessionID)
	b.WriteByte('&')
	b.WriteString(params.StartDate)
	b.WriteByte('&')
	b.WriteString(params.EndDate)
	b.WriteString("&Z")
	b.WriteString(strconv.Itoa(params.SequenceCounter))
	b.WriteByte('&')
	b.WriteString(params.Codes)
	return b.String()
}

// LogURL shortens the inverter URL for the logs and hides the session token,
// which is always the second value of the query
func LogURL(upstreamURL string) string {
	base, query, found := strings.Cut(upstreamURL, "?")
	if found {
		parts := strings.SplitN(query, "&", 3)
		if len(parts) > 1 {
			parts[1] = "***"
		}
		upstreamURL = base + "?" + strings.Join(parts, "&")
	}

	// cut on a rune boundary, the codes are passed through as sent
	count := 0
	for i := range upstreamURL {
		if count == logURLLength {
			return upstreamURL[:i] + "..."
		}
		count++
	}
	return upstreamURL
}
