// Package serial opens the host's serial links to the switching
// peripheral and the printer.
package serial

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/bft-labs/filaswitch/pkg/log"
)

// Config describes one serial link.
type Config struct {
	Device   string
	BaudRate int

	// ReadTimeout bounds a single Read so callers can poll.
	ReadTimeout time.Duration

	// OpenAttempts is how many times Open is tried before giving up.
	OpenAttempts int
}

// DefaultConfig returns a 115200 baud configuration with a short read timeout.
func DefaultConfig(device string) Config {
	return Config{
		Device:       device,
		BaudRate:     115200,
		ReadTimeout:  10 * time.Millisecond,
		OpenAttempts: 5,
	}
}

// Retry delays for Open; tests shorten them.
var (
	retryInitial = 250 * time.Millisecond
	retryMax     = 4 * time.Second
)

// opener is replaced in tests.
var opener = func(device string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(device, mode)
}

// Open opens the device 8N1, retrying with backoff while the device is
// missing or busy. The returned port satisfies ports.SerialChannel.
func Open(ctx context.Context, cfg Config, logger log.Logger) (serial.Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial: device required")
	}
	attempts := cfg.OpenAttempts
	if attempts <= 0 {
		attempts = 1
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	b := newBackoff(retryInitial, retryMax)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		port, err := opener(cfg.Device, mode)
		if err == nil {
			if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
				port.Close()
				return nil, fmt.Errorf("serial %s: set read timeout: %w", cfg.Device, err)
			}
			logger.Info("serial port open",
				log.String("device", cfg.Device),
				log.Int("baud", cfg.BaudRate),
			)
			return port, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := b.Next()
		logger.Warn("serial open failed, retrying",
			log.String("device", cfg.Device),
			log.Int("attempt", attempt),
			log.Duration("retry_in", delay),
			log.Err(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("serial %s: open: %w", cfg.Device, lastErr)
}
