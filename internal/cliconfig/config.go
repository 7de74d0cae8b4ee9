// Package cliconfig assembles the filaswitch configuration from flags,
// FILASWITCH_* environment variables, a TOML file and defaults, in that
// order of precedence.
package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/filaswitch/internal/adapters/gcode"
	"github.com/bft-labs/filaswitch/internal/adapters/modbus"
	"github.com/bft-labs/filaswitch/internal/adapters/serial"
	"github.com/bft-labs/filaswitch/internal/app"
	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/link"
	"github.com/bft-labs/filaswitch/internal/local"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/internal/protocol"
	"github.com/bft-labs/filaswitch/internal/transport"
)

// Variants.
const (
	VariantProtocol = "protocol"
	VariantLocal    = "local"
)

// Operator confirmation sources.
const (
	ConfirmPrinter = "printer"
	ConfirmConsole = "console"
)

type Config struct {
	Variant  string
	Ports    int
	Simulate bool
	LogLevel string

	PeripheralDevice string
	PeripheralBaud   int
	ResponseTimeout  time.Duration
	PollInterval     time.Duration
	NudgeMM          int
	GripDwell        time.Duration

	PrinterDevice  string
	PrinterBaud    int
	CommandTimeout time.Duration
	MotionTimeout  time.Duration
	MinExtrudeTemp float64
	ParkX          float64
	ParkY          float64
	ParkZRaise     float64
	Confirm        string

	ModbusEndpoint string
	ModbusUnitID   int
	ModbusTimeout  time.Duration
	PresenceInput  int
	AngleRegister  int
	EnableCoil     int
	ServoIndex     int
	Angles         []int
	FeedAngle      int
	SettleDelay    time.Duration

	RetractStepMM   float64
	RetractFeedrate float64
	GearClearanceMM float64
	MaxUnloadMM     float64
	FeedFeedrate    float64
	FeedWindow      time.Duration
	FeedSettle      time.Duration
	MaxLoadAttempts int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	tc := transport.DefaultConfig()
	return Config{
		Variant:  VariantProtocol,
		Ports:    4,
		LogLevel: "info",

		PeripheralBaud:  115200,
		ResponseTimeout: time.Second,
		PollInterval:    2 * time.Millisecond,
		NudgeMM:         10,
		GripDwell:       time.Second,

		PrinterBaud:    115200,
		CommandTimeout: 5 * time.Second,
		MotionTimeout:  2 * time.Minute,
		MinExtrudeTemp: 170,
		ParkZRaise:     10,
		Confirm:        ConfirmPrinter,

		ModbusUnitID:  1,
		ModbusTimeout: time.Second,
		Angles:        []int{30, 70, 110, 150},
		FeedAngle:     90,
		SettleDelay:   500 * time.Millisecond,

		RetractStepMM:   tc.RetractStepMM,
		RetractFeedrate: tc.RetractFeedrate,
		GearClearanceMM: tc.GearClearanceMM,
		MaxUnloadMM:     tc.MaxUnloadMM,
		FeedFeedrate:    tc.FeedFeedrate,
		FeedWindow:      tc.FeedWindow,
		FeedSettle:      tc.FeedSettle,
		MaxLoadAttempts: 2,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantProtocol, VariantLocal:
	default:
		return fmt.Errorf("%w: variant must be %q or %q, got %q", domain.ErrInvalidConfig, VariantProtocol, VariantLocal, c.Variant)
	}
	if c.Ports < 1 || c.Ports > domain.MaxPorts {
		return fmt.Errorf("%w: ports must be between 1 and %d", domain.ErrInvalidConfig, domain.MaxPorts)
	}
	switch c.Confirm {
	case ConfirmPrinter, ConfirmConsole:
	default:
		return fmt.Errorf("%w: confirm must be %q or %q", domain.ErrInvalidConfig, ConfirmPrinter, ConfirmConsole)
	}

	if !c.Simulate {
		if c.PrinterDevice == "" {
			return fmt.Errorf("%w: printer device is required", domain.ErrInvalidConfig)
		}
		if c.Variant == VariantProtocol && c.PeripheralDevice == "" {
			return fmt.Errorf("%w: peripheral device is required for the protocol variant", domain.ErrInvalidConfig)
		}
		if c.Variant == VariantLocal && c.ModbusEndpoint == "" {
			return fmt.Errorf("%w: modbus endpoint is required for the local variant", domain.ErrInvalidConfig)
		}
	}

	if c.Variant == VariantLocal && len(c.Angles) < c.Ports {
		return fmt.Errorf("%w: %d angles configured for %d ports", domain.ErrInvalidConfig, len(c.Angles), c.Ports)
	}
	if c.ServoIndex < 0 {
		return fmt.Errorf("%w: servo index %d", domain.ErrInvalidConfig, c.ServoIndex)
	}
	for i, a := range c.Angles {
		if a < 0 || a > 180 {
			return fmt.Errorf("%w: angle %d for port %c out of range", domain.ErrInvalidConfig, a, domain.Port(i).Letter())
		}
	}

	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: response timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", domain.ErrInvalidConfig)
	}
	if c.FeedWindow <= 0 {
		return fmt.Errorf("%w: feed window must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxLoadAttempts < 1 {
		return fmt.Errorf("%w: max load attempts must be at least 1", domain.ErrInvalidConfig)
	}
	return nil
}

// LinkConfig returns the peripheral link settings.
func (c Config) LinkConfig() link.Config {
	return link.Config{DefaultTimeout: c.ResponseTimeout, PollInterval: c.PollInterval}
}

// ProtocolConfig returns the peripheral command settings.
func (c Config) ProtocolConfig() protocol.Config {
	return protocol.Config{Timeout: c.ResponseTimeout, NudgeMM: c.NudgeMM}
}

// LocalConfig returns the servo settings.
func (c Config) LocalConfig() local.Config {
	return local.Config{SettleDelay: c.SettleDelay, FeedAngle: c.FeedAngle}
}

// ControllerConfig returns the controller policy.
func (c Config) ControllerConfig() app.Config {
	tc := transport.DefaultConfig()
	tc.RetractStepMM = c.RetractStepMM
	tc.RetractFeedrate = c.RetractFeedrate
	tc.GearClearanceMM = c.GearClearanceMM
	tc.MaxUnloadMM = c.MaxUnloadMM
	tc.FeedFeedrate = c.FeedFeedrate
	tc.FeedWindow = c.FeedWindow
	tc.FeedSettle = c.FeedSettle
	return app.Config{
		ExtruderCount:   c.Ports,
		MinExtrudeTemp:  c.MinExtrudeTemp,
		MaxLoadAttempts: c.MaxLoadAttempts,
		Park:            ports.ParkPosition{X: c.ParkX, Y: c.ParkY, ZRaise: c.ParkZRaise},
		Transport:       tc,
	}
}

// PeripheralSerial returns the peripheral serial settings.
func (c Config) PeripheralSerial() serial.Config {
	sc := serial.DefaultConfig(c.PeripheralDevice)
	sc.BaudRate = c.PeripheralBaud
	return sc
}

// PrinterSerial returns the printer serial settings.
func (c Config) PrinterSerial() serial.Config {
	sc := serial.DefaultConfig(c.PrinterDevice)
	sc.BaudRate = c.PrinterBaud
	sc.ReadTimeout = 100 * time.Millisecond
	return sc
}

// PrinterConfig returns the printer link timing.
func (c Config) PrinterConfig() gcode.Config {
	return gcode.Config{CommandTimeout: c.CommandTimeout, MotionTimeout: c.MotionTimeout}
}

// ModbusConfig returns the I/O module settings.
func (c Config) ModbusConfig() modbus.Config {
	return modbus.Config{
		Endpoint:      c.ModbusEndpoint,
		UnitID:        uint8(c.ModbusUnitID),
		Timeout:       c.ModbusTimeout,
		PresenceInput: uint16(c.PresenceInput),
		AngleRegister: uint16(c.AngleRegister),
		EnableCoil:    uint16(c.EnableCoil),
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInts replaces a list if the source is non-empty and flag not changed.
func (s *configSetter) setInts(flag string, value []int, dst *[]int) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]int(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setIntsFromString parses a comma separated list such as "30,70,110".
func (s *configSetter) setIntsFromString(flag, value string, dst *[]int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("parse %s: %w", flag, err)
		}
		out = append(out, i)
	}
	*dst = out
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
