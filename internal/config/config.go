// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	// main hands over the version set at build time
	BuildVersion string = "0.0.0"
	AppName      string
	NodeName     string
)

// Identity is the fixed inverter access data, read once at startup
type Identity struct {
	Username     string `mapstructure:"CANADIAN_SOLAR_AP_USERNAME" validate:"required"`
	Password     string `mapstructure:"CANADIAN_SOLAR_AP_PASSWORD" validate:"required"`
	DeviceIP     string `mapstructure:"CANADIAN_SOLAR_AP_IP_ADDRESS" validate:"required"`
	SerialNumber string `mapstructure:"CANADIAN_SOLAR_SERIAL_NUMBER" validate:"required"`
	SessionID    string `mapstructure:"CANADIAN_SOLAR_SESSION_ID" validate:"required"`
}

// LogValue keeps the secrets out of the logs
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", i.Username),
		slog.String("device", i.DeviceIP),
		slog.String("serial", i.SerialNumber),
	)
}

type MQTTSettings struct {
	Broker   string `mapstructure:"MQTT_BROKER"`
	Username string `mapstructure:"MQTT_USERNAME"`
	Password string `mapstructure:"MQTT_PASSWORD"`
	Topic    string `mapstructure:"MQTT_TOPIC"`
}

// Settings is everything the process needs, it is not changed after Load
type Settings struct {
	Identity Identity     `mapstructure:",squash"`
	MQTT     MQTTSettings `mapstructure:",squash"`

	AppAddr         string        `mapstructure:"APP_ADDR"`
	AppPort         string        `mapstructure:"APP_PORT"`
	IntAddr         string        `mapstructure:"INT_ADDR"`
	IntPort         string        `mapstructure:"INT_PORT"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT" validate:"gt=0"`

	JSONLogging            bool   `mapstructure:"-"`
	LogFile                string `mapstructure:"LOG_FILE"`
	OtlpHTTPEndpoint       string `mapstructure:"OTLPHTTP_ENDPOINT"`
	OtlpHTTPTracesEndpoint string `mapstructure:"OTLPHTTP_TRACES_ENDPOINT"`

	FlagdHost string `mapstructure:"FLAGD_HOST"`
	FlagdPort uint16 `mapstructure:"FLAGD_PORT"`
}

var defaults = map[string]any{
	"APP_ADDR":         "0.0.0.0",
	"APP_PORT":         "5000",
	"INT_ADDR":         "127.0.0.1",
	"INT_PORT":         "5001",
	"UPSTREAM_TIMEOUT": 30 * time.Second,
	"MQTT_TOPIC":       "solarcourier",
	"FLAGD_PORT":       8013,
}

// keys without a default still need to be known to viper for Unmarshal
var optionalKeys = []string{
	"CANADIAN_SOLAR_AP_USERNAME",
	"CANADIAN_SOLAR_AP_PASSWORD",
	"CANADIAN_SOLAR_AP_IP_ADDRESS",
	"CANADIAN_SOLAR_SERIAL_NUMBER",
	"CANADIAN_SOLAR_SESSION_ID",
	"LOG_FILE",
	"OTLPHTTP_ENDPOINT",
	"OTLPHTTP_TRACES_ENDPOINT",
	"MQTT_BROKER",
	"MQTT_USERNAME",
	"MQTT_PASSWORD",
	"FLAGD_HOST",
}

// GetEnv gets an environment variable with a default value
func GetEnv(name string, defaultValue string) string {
	value, exists := os.LookupEnv(name)
	if exists {
		return value
	}
	return defaultValue
}

func init() {
	AppName = GetEnv("SOLAR_NAME", "Solar Courier")
	// our name
	var err error
	NodeName, err = os.Hostname()
	if err != nil {
		NodeName = "unknown_host"
	}
}

// Load reads the environment and, if present, the given .env file.
// Environment variables win over the file.
func Load(envFile string) (Settings, error) {
	var settings Settings

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optionalKeys {
		if err := v.BindEnv(key); err != nil {
			return settings, err
		}
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return settings, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
	}

	if err := v.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	// JSONLOGGING only needs to exist
	_, settings.JSONLogging = os.LookupEnv("JSONLOGGING")

	return settings, validate(settings)
}

func validate(settings Settings) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})

	err := validate.Struct(settings)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var missing, invalid []string
	for _, fieldErr := range validationErrors {
		if fieldErr.Tag() == "required" {
			missing = append(missing, fieldErr.Field())
		} else {
			invalid = append(invalid, fieldErr.Field())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(invalid, ", "))
}
