package ports

// Servo is the angle-driven actuator of the local variant.
type Servo interface {
	MoveTo(angle int) error

	// Detach releases holding torque.
	Detach() error
}

// DigitalInput is a single digital line. Reads cannot fail from the
// caller's point of view; adapters report transport problems in their logs.
type DigitalInput interface {
	Read() bool
}
