// Package protocol implements the presence sensor and port actuator of the
// protocol variant, where a remote peripheral owns port selection and the
// filament sensor and is addressed over the link.
package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/link"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Peripheral commands.
const (
	CmdPresence = "M412"
	CmdReset    = "M709"
)

// Config holds protocol variant settings.
type Config struct {
	// Timeout is the response budget for queries and commits. Zero uses the link default.
	Timeout time.Duration

	// NudgeMM is the corrective feed length sent with C<n>.
	NudgeMM int
}

// DefaultConfig returns the protocol variant defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 1000 * time.Millisecond,
		NudgeMM: 10,
	}
}

// Peripheral speaks the switching peripheral's command set over a link.
// It is both the PresenceSensor and the PortActuator of the protocol variant.
type Peripheral struct {
	link   *link.Link
	logger log.Logger
	cfg    Config
}

// New creates a peripheral over l.
func New(l *link.Link, logger log.Logger, cfg Config) *Peripheral {
	if cfg.NudgeMM <= 0 {
		cfg.NudgeMM = DefaultConfig().NudgeMM
	}
	return &Peripheral{
		link:   l,
		logger: log.With(logger, log.String("component", "peripheral")),
		cfg:    cfg,
	}
}

// Query asks the peripheral whether filament is at its sensor.
// Acknowledged means present, denied means absent, anything else is a sensor error.
func (p *Peripheral) Query(ctx context.Context) domain.Presence {
	st, err := p.link.Transact(ctx, CmdPresence, p.cfg.Timeout)
	switch st {
	case domain.ResponseAcknowledged:
		return domain.PresencePresent
	case domain.ResponseDenied:
		return domain.PresenceAbsent
	default:
		p.logger.Warn("presence query failed", log.Stringer("state", st), log.Err(err))
		return domain.PresenceSensorError
	}
}

// Commit selects port on the peripheral. Only an acknowledgement counts as success.
func (p *Peripheral) Commit(ctx context.Context, port domain.Port) error {
	if port < 0 {
		return fmt.Errorf("commit port %s: %w", port, domain.ErrInvalidPort)
	}
	_, err := p.link.Transact(ctx, fmt.Sprintf("T%d", port), p.cfg.Timeout)
	return err
}

// Nudge asks the peripheral for a short explicit feed.
func (p *Peripheral) Nudge(ctx context.Context, port domain.Port) error {
	_, err := p.link.Transact(ctx, fmt.Sprintf("C%d", p.cfg.NudgeMM), p.cfg.Timeout)
	if err != nil {
		p.logger.Warn("nudge not acknowledged", log.Stringer("port", port), log.Err(err))
	}
	return err
}

// Reset restarts the peripheral.
func (p *Peripheral) Reset(ctx context.Context) error {
	_, err := p.link.Transact(ctx, CmdReset, p.cfg.Timeout)
	return err
}

// TriggerAux fires the peripheral's auxiliary output (camera trigger) for delay.
func (p *Peripheral) TriggerAux(ctx context.Context, delay time.Duration) error {
	_, err := p.link.Transact(ctx, fmt.Sprintf("M240 D%d", delay.Milliseconds()), p.cfg.Timeout)
	return err
}

var (
	_ ports.PresenceSensor = (*Peripheral)(nil)
	_ ports.PortActuator   = (*Peripheral)(nil)
)
