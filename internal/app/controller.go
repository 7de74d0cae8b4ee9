// Package app contains the port controller, the state machine that owns
// the current and pending port and runs a tool change end to end.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/internal/transport"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Variant pairs the presence sensor and actuator of one deployment.
type Variant struct {
	Name     string
	Sensor   ports.PresenceSensor
	Actuator ports.PortActuator

	// GripDwell is waited after a commit so the peripheral can grip the
	// filament before feeding. Zero for the local variant.
	GripDwell time.Duration
}

// Config contains controller policy.
type Config struct {
	ExtruderCount   int
	MinExtrudeTemp  float64
	MaxLoadAttempts int
	Park            ports.ParkPosition
	Transport       transport.Config
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		ExtruderCount:   4,
		MinExtrudeTemp:  170,
		MaxLoadAttempts: 2,
		Park:            ports.ParkPosition{X: 0, Y: 0, ZRaise: 10},
		Transport:       transport.DefaultConfig(),
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Variant      Variant
	Motion       ports.Motion
	PrintControl ports.PrintControl
	Thermometer  ports.Thermometer
	Status       ports.StatusReporter
	Clock        ports.Clock
	Logger       log.Logger
	Emitter      PhaseEmitter
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	Current domain.Port
	Pending domain.Port
	Phase   domain.Phase
}

// Controller runs port switches. At most one switch is in flight.
type Controller struct {
	switching sync.Mutex

	mu      sync.RWMutex
	current domain.Port
	pending domain.Port

	cfg     Config
	variant Variant
	seq     *transport.Sequencer
	motion  ports.Motion
	print   ports.PrintControl
	thermo  ports.Thermometer
	status  ports.StatusReporter
	clock   ports.Clock
	logger  log.Logger
	phase   *PhaseTracker
}

// NewController creates a controller with no port engaged.
func NewController(cfg Config, d Deps) *Controller {
	logger := log.With(d.Logger, log.String("component", "controller"), log.String("variant", d.Variant.Name))
	return &Controller{
		current: domain.NoPort,
		pending: domain.NoPort,
		cfg:     cfg,
		variant: d.Variant,
		seq:     transport.New(d.Motion, d.Variant.Sensor, d.Clock, d.Logger, cfg.Transport),
		motion:  d.Motion,
		print:   d.PrintControl,
		thermo:  d.Thermometer,
		status:  d.Status,
		clock:   d.Clock,
		logger:  logger,
		phase:   NewPhaseTracker(logger, d.Emitter),
	}
}

// Current returns the engaged port, or NoPort.
func (c *Controller) Current() domain.Port {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Pending returns the port being switched to, or NoPort.
func (c *Controller) Pending() domain.Port {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// Snapshot returns current, pending and phase together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Current: c.current, Pending: c.pending, Phase: c.phase.Phase()}
}

func (c *Controller) setPorts(current, pending domain.Port) {
	c.mu.Lock()
	c.current = current
	c.pending = pending
	c.mu.Unlock()
}

// SelectPort engages port e. Selecting the current port is a no-op. The
// first selection after start commits directly since no filament is
// loaded. Later selections unload, switch and reload, escalating to the
// operator until the sensor confirms filament; they return only once the
// new port is loaded, the hotend is too cold, motion fails, or ctx ends.
func (c *Controller) SelectPort(ctx context.Context, e domain.Port) error {
	if !c.switching.TryLock() {
		return fmt.Errorf("select %s: %w", e, domain.ErrSwitchInProgress)
	}
	defer c.switching.Unlock()

	if !e.Valid(c.cfg.ExtruderCount) {
		return fmt.Errorf("select %s: %w", e, domain.ErrInvalidPort)
	}

	cur := c.Current()
	if e == cur {
		return nil
	}
	if cur == domain.NoPort {
		return c.engage(ctx, e)
	}

	if err := c.checkTemperature(ctx, e); err != nil {
		return err
	}

	c.setPorts(cur, e)
	if err := c.switchTo(ctx, cur, e); err != nil {
		c.setPorts(cur, domain.NoPort)
		c.phase.Reset("switch abandoned")
		return fmt.Errorf("switch %s -> %s: %w", cur, e, err)
	}

	c.setPorts(e, domain.NoPort)
	c.phase.Reset("filament loaded")
	c.status.Status(ctx, fmt.Sprintf("Port: %c", e.Letter()))
	return nil
}

// engage commits the first port. Only an acknowledged commit is reported
// to the user; the port becomes current either way.
func (c *Controller) engage(ctx context.Context, e domain.Port) error {
	c.setPorts(domain.NoPort, e)
	if err := c.phase.TransitionTo(domain.PhaseSwitching, "initial port"); err != nil {
		c.setPorts(domain.NoPort, domain.NoPort)
		c.phase.Reset("initial port abandoned")
		return fmt.Errorf("engage %s: %w", e, err)
	}

	err := c.variant.Actuator.Commit(ctx, e)
	c.setPorts(e, domain.NoPort)
	c.phase.Reset("initial port engaged")

	if err != nil {
		c.logger.Warn("initial commit not acknowledged", log.Stringer("port", e), log.Err(err))
		return nil
	}
	c.status.Status(ctx, fmt.Sprintf("Port: %c", e.Letter()))
	return nil
}

func (c *Controller) checkTemperature(ctx context.Context, e domain.Port) error {
	temp, err := c.thermo.HotendTemperature(ctx)
	if err != nil {
		c.logger.Warn("hotend temperature unavailable", log.Err(err))
		c.status.Status(ctx, "Hotend temperature unknown")
		return fmt.Errorf("select %s: %w: %v", e, domain.ErrTooCold, err)
	}
	if temp < c.cfg.MinExtrudeTemp {
		c.logger.Warn("hotend too cold for switch",
			log.Float64("temperature", temp),
			log.Float64("min", c.cfg.MinExtrudeTemp),
		)
		c.status.Status(ctx, "Hotend too cold")
		return fmt.Errorf("select %s: %.1fC below %.1fC: %w", e, temp, c.cfg.MinExtrudeTemp, domain.ErrTooCold)
	}
	return nil
}

func (c *Controller) switchTo(ctx context.Context, from, to domain.Port) error {
	if err := c.unload(ctx, from); err != nil {
		return err
	}

	if err := c.phase.TransitionTo(domain.PhaseSwitching, "unloaded"); err != nil {
		return err
	}
	if err := c.motion.Synchronize(ctx); err != nil {
		return err
	}
	if err := c.motion.DisableExtruderDrive(ctx); err != nil {
		return err
	}
	if err := c.variant.Actuator.Commit(ctx, to); err != nil {
		// The feed below decides success from the sensor alone.
		c.logger.Warn("port commit not acknowledged, feeding anyway", log.Stringer("port", to), log.Err(err))
	}
	if c.variant.GripDwell > 0 {
		c.clock.Sleep(c.variant.GripDwell)
	}

	if err := c.phase.TransitionTo(domain.PhaseFeeding, "port committed"); err != nil {
		return err
	}
	if err := c.motion.EnableExtruderDrive(ctx); err != nil {
		return err
	}
	presence, err := c.seq.LoadToSensor(ctx, c.cfg.MaxLoadAttempts)
	if err != nil {
		return err
	}
	if presence == domain.PresencePresent {
		return nil
	}

	if err := c.phase.TransitionTo(domain.PhaseFeedRetry, "feed missed sensor"); err != nil {
		return err
	}
	if err := c.variant.Actuator.Nudge(ctx, to); err != nil {
		c.logger.Warn("nudge failed", log.Stringer("port", to), log.Err(err))
	}
	presence, err = c.seq.LoadToSensor(ctx, c.cfg.MaxLoadAttempts)
	if err != nil {
		return err
	}

	for attempt := 1; presence != domain.PresencePresent; attempt++ {
		if err := c.phase.TransitionTo(domain.PhaseAwaitingOperator, "feed retry missed sensor"); err != nil {
			return err
		}
		c.logger.Warn("filament not detected, waiting for operator",
			log.Stringer("port", to),
			log.Stringer("presence", presence),
			log.Int("attempt", attempt),
		)
		if err := c.operatorIntervention(ctx, fmt.Sprintf("Load port %c and confirm", to.Letter())); err != nil {
			return err
		}
		if err := c.phase.TransitionTo(domain.PhaseFeeding, "operator confirmed"); err != nil {
			return err
		}
		presence, err = c.seq.LoadToSensor(ctx, c.cfg.MaxLoadAttempts)
		if err != nil {
			return err
		}
	}
	return nil
}

// unload retracts the current filament. Sensor faults and stalls are
// handed to the operator and the unload is retried after confirmation.
func (c *Controller) unload(ctx context.Context, from domain.Port) error {
	if err := c.phase.TransitionTo(domain.PhaseUnloading, "tool change"); err != nil {
		return err
	}
	for {
		err := c.seq.UnloadToGear(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSensorFault) && !errors.Is(err, domain.ErrUnloadStalled) {
			return err
		}

		if err := c.phase.TransitionTo(domain.PhaseAwaitingOperator, "unload failed"); err != nil {
			return err
		}
		c.logger.Warn("unload failed, waiting for operator", log.Stringer("port", from), log.Err(err))
		if err := c.operatorIntervention(ctx, fmt.Sprintf("Clear port %c and confirm", from.Letter())); err != nil {
			return err
		}
		if err := c.phase.TransitionTo(domain.PhaseUnloading, "operator confirmed"); err != nil {
			return err
		}
	}
}

// operatorIntervention pauses the print, waits for the operator and
// resumes. A print that was not running is not resumed.
func (c *Controller) operatorIntervention(ctx context.Context, prompt string) error {
	c.status.Status(ctx, prompt)
	paused, err := c.print.Pause(ctx, c.cfg.Park)
	if err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	if err := c.print.WaitForOperatorConfirmation(ctx, prompt); err != nil {
		return fmt.Errorf("operator confirmation: %w", err)
	}
	if !paused {
		return nil
	}
	if err := c.print.Resume(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}
