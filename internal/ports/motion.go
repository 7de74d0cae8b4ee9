package ports

import "context"

// Motion is the printer's motion service as seen by the transport sequencer.
type Motion interface {
	// MoveExtruderRelative queues an extruder move of deltaMM at feedrate mm/min.
	MoveExtruderRelative(ctx context.Context, deltaMM, feedrateMMPerMin float64) error

	// Synchronize blocks until queued motion completes.
	Synchronize(ctx context.Context) error

	EnableExtruderDrive(ctx context.Context) error
	DisableExtruderDrive(ctx context.Context) error
}
