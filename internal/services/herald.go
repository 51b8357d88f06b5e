// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"
	"github.com/schildwaechter/solarcourier/internal/o11y"
	"github.com/schildwaechter/solarcourier/internal/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	heraldQoS            = 1
	heraldConnectTimeout = 10 * time.Second
	heraldPublishTimeout = 5 * time.Second
)

// Announcer passes successful readings on
type Announcer interface {
	Announce(ctx context.Context, serialNumber string, result types.TelemetryResult)
}

// Herald republishes readings to MQTT, fire and forget
type Herald struct {
	client mqtt.Client
	topic  string
}

// NewHerald prepares the MQTT client; nothing connects before Start
func NewHerald(settings config.MQTTSettings) *Herald {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID("solarcourier-" + uuid.NewString()[:8])
	if settings.Username != "" && settings.Password != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(heraldConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		o11y.Logger.Warn("MQTT connection lost: " + err.Error())
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		o11y.Logger.Info("MQTT connected to " + settings.Broker)
	})

	return &Herald{
		client: mqtt.NewClient(opts),
		topic:  strings.TrimSuffix(settings.Topic, "/"),
	}
}

func (h *Herald) Start() error {
	token := h.client.Connect()
	if !token.WaitTimeout(heraldConnectTimeout) {
		return fmt.Errorf("MQTT connect timed out after %s", heraldConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect error: %w", err)
	}
	return nil
}

func (h *Herald) Stop() {
	if h.client.IsConnected() {
		h.client.Disconnect(1000)
	}
}

// Topic is where readings of the given inverter end up
func (h *Herald) Topic(serialNumber string) string {
	return h.topic + "/" + serialNumber
}

// Announce publishes the reading without waiting for the broker
func (h *Herald) Announce(ctx context.Context, serialNumber string, result types.TelemetryResult) {
	if !h.client.IsConnected() {
		o11y.Logger.DebugContext(ctx, "MQTT not connected, reading not announced")
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o11y.Logger.ErrorContext(ctx, "Can't encode reading for MQTT: "+err.Error())
		return
	}

	token := h.client.Publish(h.Topic(serialNumber), heraldQoS, false, payload)
	go func() {
		if token.WaitTimeout(heraldPublishTimeout) && token.Error() != nil {
			o11y.Logger.Warn("MQTT publish error: " + token.Error().Error())
		}
	}()
}
