package ports

import "context"

// ParkPosition is where the toolhead waits while the operator intervenes.
type ParkPosition struct {
	X      float64
	Y      float64
	ZRaise float64
}

// PrintControl pauses and resumes the active print around operator intervention.
type PrintControl interface {
	// Pause parks the toolhead and pauses the print. It reports whether a
	// print was actually paused.
	Pause(ctx context.Context, park ParkPosition) (bool, error)

	// WaitForOperatorConfirmation blocks until the operator confirms.
	WaitForOperatorConfirmation(ctx context.Context, prompt string) error

	Resume(ctx context.Context) error
}

// Thermometer reports the active hotend temperature in °C.
type Thermometer interface {
	HotendTemperature(ctx context.Context) (float64, error)
}

// StatusReporter shows advisory single-line status messages.
type StatusReporter interface {
	Status(ctx context.Context, msg string)
}
