// Package local implements the presence sensor and port actuator of the
// local variant: a servo selects the port and a digital input reports
// filament presence.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Config holds local variant settings.
type Config struct {
	// SettleDelay is how long the servo is held at an angle before detaching.
	SettleDelay time.Duration

	// FeedAngle is the secondary servo position used for the corrective nudge.
	FeedAngle int
}

// DefaultConfig returns the local variant defaults.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 500 * time.Millisecond,
		FeedAngle:   90,
	}
}

// Sensor reads filament presence from a digital input. It never reports a sensor error.
type Sensor struct {
	in ports.DigitalInput
}

// NewSensor creates a sensor over in.
func NewSensor(in ports.DigitalInput) *Sensor {
	return &Sensor{in: in}
}

// Query performs a single digital read.
func (s *Sensor) Query(ctx context.Context) domain.Presence {
	if s.in.Read() {
		return domain.PresencePresent
	}
	return domain.PresenceAbsent
}

// Actuator drives a servo to per-port angles.
type Actuator struct {
	servo  ports.Servo
	angles *domain.AngleTable
	clock  ports.Clock
	logger log.Logger
	cfg    Config
}

// NewActuator creates an actuator reading angles from table.
func NewActuator(servo ports.Servo, table *domain.AngleTable, clock ports.Clock, logger log.Logger, cfg Config) *Actuator {
	return &Actuator{
		servo:  servo,
		angles: table,
		clock:  clock,
		logger: log.With(logger, log.String("component", "servo")),
		cfg:    cfg,
	}
}

// Commit moves the servo to the port's angle, holds it for the settle
// delay and releases it. There is no acknowledgement; presence feedback
// verifies the result later.
func (a *Actuator) Commit(ctx context.Context, port domain.Port) error {
	angle, ok := a.angles.Angle(port)
	if !ok {
		return fmt.Errorf("commit port %s: %w", port, domain.ErrInvalidPort)
	}
	a.logger.Debug("moving to port", log.Stringer("port", port), log.Int("angle", angle))
	if err := a.hold(angle); err != nil {
		return fmt.Errorf("commit port %s: %w", port, err)
	}
	return a.servo.Detach()
}

// Nudge pulses the servo through the feed position and back to the port.
func (a *Actuator) Nudge(ctx context.Context, port domain.Port) error {
	angle, ok := a.angles.Angle(port)
	if !ok {
		return fmt.Errorf("nudge port %s: %w", port, domain.ErrInvalidPort)
	}
	a.logger.Debug("feed pulse", log.Stringer("port", port), log.Int("feed_angle", a.cfg.FeedAngle))
	if err := a.hold(a.cfg.FeedAngle); err != nil {
		return fmt.Errorf("nudge port %s: %w", port, err)
	}
	if err := a.hold(angle); err != nil {
		return fmt.Errorf("nudge port %s: %w", port, err)
	}
	return a.servo.Detach()
}

func (a *Actuator) hold(angle int) error {
	if err := a.servo.MoveTo(angle); err != nil {
		return err
	}
	a.clock.Sleep(a.cfg.SettleDelay)
	return nil
}

var (
	_ ports.PresenceSensor = (*Sensor)(nil)
	_ ports.PortActuator   = (*Actuator)(nil)
)
