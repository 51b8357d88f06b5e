// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/handlers"
	"github.com/schildwaechter/solarcourier/internal/o11y"
	"github.com/schildwaechter/solarcourier/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	slogfiber "github.com/samber/slog-fiber"
)

// to be overwritten on build
var buildVersion string = "0.0.0"

func main() {
	config.BuildVersion = buildVersion

	settings, err := config.Load(config.GetEnv("ENV_FILE", ".env"))
	if err != nil {
		log.Fatal(err)
	}

	// common attributes for all OTEL data
	commonAttribs := o11y.CommonAttribs(config.AppName, config.BuildVersion, config.NodeName, settings.Identity.SerialNumber)

	// configure sending OTEL if needed
	// if it's not configured, everything just remains silent
	otelShutdown, err := o11y.Setup(settings.OtlpHTTPEndpoint, settings.OtlpHTTPTracesEndpoint, commonAttribs)
	if err != nil {
		log.Fatal("Can't send OTEL data: ", err)
	}
	defer func() {
		_ = otelShutdown(context.Background())
	}()

	// set up the logging with fanout to stdout, OTEL and (optionally) a file
	o11y.CreateLogger(config.AppName, o11y.LogOptions{JSON: settings.JSONLogging, LogFile: settings.LogFile})
	o11y.Logger.Info("Starting "+config.AppName, "version", config.BuildVersion, "inverter", settings.Identity)
	switch {
	case settings.OtlpHTTPTracesEndpoint != "":
		o11y.Logger.Info("Sending traces to " + settings.OtlpHTTPTracesEndpoint)
	case settings.OtlpHTTPEndpoint != "":
		o11y.Logger.Info("Sending OTEL data to " + settings.OtlpHTTPEndpoint)
	default:
		o11y.Logger.Info("Not sending OTEL data")
	}

	// we use both prometheus and OTEL
	if err := o11y.InitCourierMetrics(config.AppName, commonAttribs, prometheus.DefaultRegisterer); err != nil {
		log.Fatal("Can't create metrics: ", err)
	}

	var courierOpts []handlers.Option
	if err := config.InitFlags(settings); err != nil {
		o11y.Logger.Warn("Feature flags unavailable, using defaults: " + err.Error())
	}
	if config.RollingCounterEnabled(context.Background()) {
		o11y.Logger.Info("Rolling sequence counter enabled")
		courierOpts = append(courierOpts, handlers.WithRollingCounter(services.NewRollingCounter(0)))
	}

	if settings.MQTT.Broker != "" {
		herald := services.NewHerald(settings.MQTT)
		if err := herald.Start(); err != nil {
			// auto reconnect keeps trying in the background
			o11y.Logger.Warn(err.Error())
		}
		defer herald.Stop()
		courierOpts = append(courierOpts, handlers.WithAnnouncer(herald))
	}

	vitals := &services.Vitals{}
	courier := services.NewNimbleCourier(settings.Identity, settings.UpstreamTimeout)

	app := fiber.New(fiber.Config{
		AppName:               config.AppName,
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})
	appInt := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())

	// healthcheck before any tracing/logging/metrics and on internal port
	appInt.Use(healthcheck.New(healthcheck.Config{
		LivenessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		LivenessEndpoint: "/livez",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return vitals.Ready()
		},
		ReadinessEndpoint: "/readyz",
	}))

	prom := fiberprometheus.NewWithDefaultRegistry(config.AppName)
	prom.RegisterAt(appInt, "/metrics")
	app.Use(prom.Middleware)
	app.Use(otelfiber.Middleware())

	// always log traceID, spanID and requestID
	loggerConfig := slogfiber.Config{
		WithSpanID:    true,
		WithTraceID:   true,
		WithRequestID: true,
	}
	app.Use(slogfiber.NewWithConfig(o11y.Logger, loggerConfig))
	app.Use(recover.New())

	handlers.NewCourier(settings.Identity, courier, vitals, courierOpts...).RegisterRoutes(app)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := appInt.Listen(settings.IntAddr + ":" + settings.IntPort); err != nil {
			log.Fatal(err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		o11y.Logger.Info("Listening on " + settings.AppAddr + ":" + settings.AppPort)
		if err := app.Listen(settings.AppAddr + ":" + settings.AppPort); err != nil {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	o11y.Logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := errors.Join(app.ShutdownWithContext(ctx), appInt.ShutdownWithContext(ctx)); err != nil {
		o11y.Logger.Error("Unclean shutdown: " + err.Error())
	}
	wg.Wait()
}
