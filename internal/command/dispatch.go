package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/filaswitch/internal/app"
	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// ErrUnsupported is returned for requests the active variant cannot serve.
var ErrUnsupported = errors.New("command: not supported by this variant")

// Selector is the controller surface used by the dispatcher.
type Selector interface {
	SelectPort(ctx context.Context, e domain.Port) error
	Snapshot() app.Snapshot
}

// Housekeeper is implemented by peripherals that accept reset and
// auxiliary trigger commands.
type Housekeeper interface {
	Reset(ctx context.Context) error
	TriggerAux(ctx context.Context, delay time.Duration) error
}

// AngleStore holds the editable per-port servo angles.
type AngleStore struct {
	Table *domain.AngleTable

	// Servo is the servo number reported with the table.
	Servo int

	// Save persists the new table. Optional.
	Save func(angles []int) error
}

// Apply edits the table and persists the result.
func (s *AngleStore) Apply(edits map[domain.Port]int) ([]int, error) {
	next := s.Table.Snapshot()
	for port, angle := range edits {
		if int(port) >= len(next) {
			return nil, fmt.Errorf("angle for port %c: %w", port.Letter(), domain.ErrInvalidPort)
		}
		next[port] = angle
	}
	if s.Save != nil {
		if err := s.Save(next); err != nil {
			return nil, fmt.Errorf("save angles: %w", err)
		}
	}
	s.Table.Replace(next)
	return next, nil
}

// Dispatcher executes parsed requests one at a time.
type Dispatcher struct {
	ctl    Selector
	sensor ports.PresenceSensor
	house  Housekeeper
	angles *AngleStore
	logger log.Logger
}

// NewDispatcher creates a dispatcher. house and angles may be nil when the
// variant has no such capability.
func NewDispatcher(ctl Selector, sensor ports.PresenceSensor, house Housekeeper, angles *AngleStore, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		ctl:    ctl,
		sensor: sensor,
		house:  house,
		angles: angles,
		logger: log.With(logger, log.String("component", "dispatch")),
	}
}

// Execute runs req and returns a one-line reply.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindSelect:
		start := time.Now()
		if err := d.ctl.SelectPort(ctx, req.Port); err != nil {
			return "", err
		}
		d.logger.Info("port selected", log.Stringer("port", req.Port), log.Duration("took", time.Since(start)))
		return "ok", nil

	case KindPresence:
		return d.sensor.Query(ctx).String(), nil

	case KindStatus:
		s := d.ctl.Snapshot()
		return fmt.Sprintf("current=%s pending=%s phase=%s", s.Current, s.Pending, s.Phase), nil

	case KindReset:
		if d.house == nil {
			return "", ErrUnsupported
		}
		if err := d.house.Reset(ctx); err != nil {
			return "", err
		}
		return "ok", nil

	case KindTrigger:
		if d.house == nil {
			return "", ErrUnsupported
		}
		if err := d.house.TriggerAux(ctx, req.Delay); err != nil {
			return "", err
		}
		return "ok", nil

	case KindAngles:
		if d.angles == nil {
			return "", ErrUnsupported
		}
		if len(req.Angles) == 0 {
			return FormatAngles(d.angles.Servo, d.angles.Table.Snapshot()), nil
		}
		next, err := d.angles.Apply(req.Angles)
		if err != nil {
			return "", err
		}
		d.logger.Info("servo angles updated", log.String("angles", FormatAngles(d.angles.Servo, next)))
		return FormatAngles(d.angles.Servo, next), nil
	}
	return "", fmt.Errorf("%w: kind %d", ErrUnknownCommand, req.Kind)
}
