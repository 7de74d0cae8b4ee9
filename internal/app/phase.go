package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// PhaseEmitter is called when the controller phase changes.
type PhaseEmitter interface {
	OnPhaseChange(previous, current domain.Phase, reason string)
}

// PhaseTracker holds the tool-change phase and enforces legal transitions.
type PhaseTracker struct {
	mu      sync.RWMutex
	phase   domain.Phase
	logger  log.Logger
	emitter PhaseEmitter
}

// NewPhaseTracker creates a tracker starting in PhaseIdle.
func NewPhaseTracker(logger log.Logger, emitter PhaseEmitter) *PhaseTracker {
	return &PhaseTracker{
		phase:   domain.PhaseIdle,
		logger:  logger,
		emitter: emitter,
	}
}

// Phase returns the current phase.
func (t *PhaseTracker) Phase() domain.Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// TransitionTo moves to next. Illegal transitions leave the phase unchanged
// and return ErrInvalidTransition.
func (t *PhaseTracker) TransitionTo(next domain.Phase, reason string) error {
	t.mu.Lock()
	prev := t.phase
	if !prev.CanTransition(next) {
		t.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", prev, next, domain.ErrInvalidTransition)
	}
	t.phase = next
	t.mu.Unlock()

	// Emit event outside of lock
	if t.emitter != nil {
		t.emitter.OnPhaseChange(prev, next, reason)
	}

	t.logger.Info("phase transition",
		log.Stringer("from", prev),
		log.Stringer("to", next),
		log.String("reason", reason),
	)
	return nil
}

// Reset returns to PhaseIdle, which is reachable from every phase.
func (t *PhaseTracker) Reset(reason string) {
	_ = t.TransitionTo(domain.PhaseIdle, reason)
}
