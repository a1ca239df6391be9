package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/fastprodman/vmpay-authorizer/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"PORT" default:"3000"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	LogFormat       string        `env:"APP_LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
	APIKey          string        `env:"VMPAY_API_KEY"`
	Vmachine        config.VmachineConfig
}

// finalize applies cross-field defaults and checks what envconf can't.
func (c *apiConfig) finalize() error {
	if c.APIKey == "" {
		return errors.New("VMPAY_API_KEY must not be empty")
	}

	if c.Vmachine.Endpoint == "" {
		return errors.New("VMACHINE_ENDPOINT must not be empty")
	}

	// the SOAP service historically shares the API key
	if c.Vmachine.AuthKey == "" {
		c.Vmachine.AuthKey = c.APIKey
	}

	return nil
}
