// Package transport choreographs filament moves around a port switch:
// unloading back to the feed gear and reloading until the sensor confirms.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Config holds transport distances, feedrates and timing.
type Config struct {
	RetractStepMM   float64
	RetractFeedrate float64

	// GearClearanceMM is retracted after the sensor clears so the gear releases the filament.
	GearClearanceMM float64

	// MaxUnloadMM bounds the retract loop.
	MaxUnloadMM float64

	FeedStepMM   float64
	FeedFeedrate float64

	// FeedWindow is how long one load attempt keeps feeding.
	FeedWindow time.Duration

	// FeedSettle is the pause between feed increments.
	FeedSettle time.Duration
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		RetractStepMM:   5,
		RetractFeedrate: 1800,
		GearClearanceMM: 25,
		MaxUnloadMM:     800,
		FeedStepMM:      1,
		FeedFeedrate:    600,
		FeedWindow:      3 * time.Second,
		FeedSettle:      20 * time.Millisecond,
	}
}

// Sequencer runs unload and reload motion on the printer's extruder.
type Sequencer struct {
	motion ports.Motion
	sensor ports.PresenceSensor
	clock  ports.Clock
	logger log.Logger
	cfg    Config
}

// New creates a sequencer.
func New(motion ports.Motion, sensor ports.PresenceSensor, clock ports.Clock, logger log.Logger, cfg Config) *Sequencer {
	return &Sequencer{
		motion: motion,
		sensor: sensor,
		clock:  clock,
		logger: log.With(logger, log.String("component", "transport")),
		cfg:    cfg,
	}
}

// step queues one extruder move and waits for it to finish.
func (s *Sequencer) step(ctx context.Context, deltaMM, feedrate float64) error {
	if err := s.motion.MoveExtruderRelative(ctx, deltaMM, feedrate); err != nil {
		return fmt.Errorf("move extruder %.2fmm: %w", deltaMM, err)
	}
	if err := s.motion.Synchronize(ctx); err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}
	return nil
}

// UnloadToGear retracts in small steps while filament is present, then
// clears the feed gear. A failed presence query stops the loop with
// ErrSensorFault rather than being read as "absent".
func (s *Sequencer) UnloadToGear(ctx context.Context) error {
	var retracted float64
	for {
		p := s.sensor.Query(ctx)
		if p == domain.PresenceSensorError {
			return fmt.Errorf("unload after %.0fmm: %w", retracted, domain.ErrSensorFault)
		}
		if p != domain.PresencePresent {
			break
		}
		if retracted >= s.cfg.MaxUnloadMM {
			return fmt.Errorf("unload after %.0fmm: %w", retracted, domain.ErrUnloadStalled)
		}
		if err := s.step(ctx, -s.cfg.RetractStepMM, s.cfg.RetractFeedrate); err != nil {
			return err
		}
		retracted += s.cfg.RetractStepMM
	}

	s.logger.Debug("sensor clear", log.Float64("retracted_mm", retracted))
	return s.step(ctx, -s.cfg.GearClearanceMM, s.cfg.RetractFeedrate)
}

// LoadToSensor feeds filament until the sensor reports it, for up to
// maxAttempts windows of FeedWindow each. It returns the last observed
// presence; the error is set only when motion itself failed.
func (s *Sequencer) LoadToSensor(ctx context.Context, maxAttempts int) (domain.Presence, error) {
	last := domain.PresenceAbsent
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = s.sensor.Query(ctx)
		if last == domain.PresencePresent {
			return last, nil
		}

		var fed float64
		start := s.clock.Now()
		for s.clock.Now().Sub(start) < s.cfg.FeedWindow {
			if err := s.step(ctx, s.cfg.FeedStepMM, s.cfg.FeedFeedrate); err != nil {
				return last, err
			}
			fed += s.cfg.FeedStepMM
			last = s.sensor.Query(ctx)
			if last == domain.PresencePresent {
				s.logger.Debug("filament at sensor", log.Int("attempt", attempt), log.Float64("fed_mm", fed))
				return last, nil
			}
			s.clock.Sleep(s.cfg.FeedSettle)
		}

		s.logger.Info("load attempt missed sensor",
			log.Int("attempt", attempt),
			log.Int("max_attempts", maxAttempts),
			log.Float64("fed_mm", fed),
			log.Stringer("presence", last),
		)
	}
	return last, nil
}
