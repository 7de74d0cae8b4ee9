package domain

import "errors"

// Domain errors represent error conditions in the filaswitch domain.
// They are returned wrapped and can be checked with errors.Is.
var (
	// ErrCommandTimeout is returned when the peripheral did not answer within the budget.
	ErrCommandTimeout = errors.New("filaswitch: command timed out")

	// ErrCommandDenied is returned when the peripheral answered "no".
	ErrCommandDenied = errors.New("filaswitch: command denied")

	// ErrLinkFault is returned when the serial channel itself failed.
	ErrLinkFault = errors.New("filaswitch: link fault")

	// ErrLinkBusy is returned when a command is sent while another is pending.
	ErrLinkBusy = errors.New("filaswitch: transaction already pending")

	// ErrBufferOverrun is logged when the receive buffer overflows.
	ErrBufferOverrun = errors.New("filaswitch: receive buffer overrun")

	// ErrSensorFault is returned when the presence query itself failed.
	ErrSensorFault = errors.New("filaswitch: presence sensor fault")

	// ErrUnloadStalled is returned when filament is still detected after the maximum retract.
	ErrUnloadStalled = errors.New("filaswitch: filament still present after maximum retract")

	// ErrTooCold is returned when the hotend is below the minimum extrusion temperature.
	ErrTooCold = errors.New("filaswitch: hotend too cold to extrude")

	// ErrInvalidPort is returned for ports outside [0, extruderCount).
	ErrInvalidPort = errors.New("filaswitch: invalid port")

	// ErrSwitchInProgress is returned when a tool change is requested during another.
	ErrSwitchInProgress = errors.New("filaswitch: tool change already in progress")

	// ErrInvalidTransition is returned for phase transitions the state machine does not allow.
	ErrInvalidTransition = errors.New("filaswitch: invalid phase transition")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("filaswitch: invalid configuration")

	// ErrAlreadyRunning is returned when Start is called on a running switch.
	ErrAlreadyRunning = errors.New("filaswitch: already running")

	// ErrNotRunning is returned when a running switch is required.
	ErrNotRunning = errors.New("filaswitch: not running")
)
