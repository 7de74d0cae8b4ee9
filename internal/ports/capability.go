package ports

import (
	"context"

	"github.com/bft-labs/filaswitch/internal/domain"
)

// PresenceSensor reports filament presence. Results are never cached.
type PresenceSensor interface {
	Query(ctx context.Context) domain.Presence
}

// PortActuator commits the accessory to a port.
type PortActuator interface {
	// Commit engages port. An error means the commit was not confirmed.
	Commit(ctx context.Context, port domain.Port) error

	// Nudge performs the corrective feed action used before a re-feed.
	Nudge(ctx context.Context, port domain.Port) error
}
