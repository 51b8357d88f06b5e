// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/schildwaechter/solarcourier/internal/services"
	"github.com/schildwaechter/solarcourier/internal/types"

	"github.com/gofiber/fiber/v2"
)

// HandleError maps an error to the status and message shown to the caller.
// Messages never carry upstream details beyond the status code.
func HandleError(err error) (int, string) {
	var paramErr *services.ParameterError
	if errors.As(err, &paramErr) {
		return http.StatusBadRequest, paramErr.Message
	}

	var upstreamErr *services.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.Kind {
		case services.Connection:
			return http.StatusServiceUnavailable, "Connection failed to inverter"
		case services.Timeout:
			return http.StatusGatewayTimeout, "Request timeout"
		default:
			return http.StatusBadGateway, "Network error occurred"
		}
	}

	var statusErr *services.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, fmt.Sprintf("Failed to retrieve data, status code: %d", statusErr.StatusCode)
	}

	if errors.Is(err, services.ErrEmptyPayload) {
		return http.StatusBadGateway, "Empty response from inverter"
	}

	var payloadErr *services.PayloadError
	if errors.As(err, &payloadErr) {
		return http.StatusBadGateway, "Failed to parse response data"
	}

	// fiber's own errors, e.g. unknown routes
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	return http.StatusInternalServerError, "Internal server error"
}

// ErrorHandler answers every error fiber sees with a JSON body
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, message := HandleError(err)
	return c.Status(status).JSON(types.ErrorReply{Error: message})
}
