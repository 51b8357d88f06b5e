// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package config

import (
	"context"

	flagd "github.com/open-feature/go-sdk-contrib/providers/flagd/pkg"
	"github.com/open-feature/go-sdk/openfeature"
)

// RollingCounterFlag switches absent sequence counters from 0 to a rolling value
const RollingCounterFlag = "rolling-sequence-counter"

// InitFlags connects to flagd if configured.
// Without a provider every flag evaluates to its default.
func InitFlags(settings Settings) error {
	if settings.FlagdHost == "" {
		return nil
	}
	provider, err := flagd.NewProvider(
		flagd.WithHost(settings.FlagdHost),
		flagd.WithPort(settings.FlagdPort),
	)
	if err != nil {
		return err
	}
	return openfeature.SetProviderAndWait(provider)
}

// RollingCounterEnabled evaluates the rolling counter flag for this instance
func RollingCounterEnabled(ctx context.Context) bool {
	client := openfeature.NewClient(AppName)
	evalCtx := openfeature.NewEvaluationContext(NodeName, map[string]any{
		"version": BuildVersion,
	})
	enabled, err := client.BooleanValue(ctx, RollingCounterFlag, false, evalCtx)
	if err != nil {
		return false
	}
	return enabled
}
