package filaswitch

import (
	"github.com/bft-labs/filaswitch/internal/domain"
)

// Phase is the tool change phase.
type Phase = domain.Phase

// PhaseChangeEvent describes one phase transition of a tool change.
type PhaseChangeEvent struct {
	Previous Phase
	Current  Phase
	Reason   string
}

// EventHandler receives tool change notifications. Calls are made
// synchronously from the goroutine running the switch and must return
// quickly. A handler must not call Stop.
type EventHandler interface {
	OnPhaseChange(event PhaseChangeEvent)
}

// phaseEmitter adapts an EventHandler to the controller's emitter.
type phaseEmitter struct {
	handler EventHandler
}

func (e phaseEmitter) OnPhaseChange(previous, current domain.Phase, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnPhaseChange(PhaseChangeEvent{Previous: previous, Current: current, Reason: reason})
}
