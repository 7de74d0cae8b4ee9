package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (FILASWITCH_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("variant", os.Getenv("FILASWITCH_VARIANT"), &cfg.Variant)
	s.setString("log-level", os.Getenv("FILASWITCH_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("peripheral", os.Getenv("FILASWITCH_PERIPHERAL"), &cfg.PeripheralDevice)
	s.setString("printer", os.Getenv("FILASWITCH_PRINTER"), &cfg.PrinterDevice)
	s.setString("confirm", os.Getenv("FILASWITCH_CONFIRM"), &cfg.Confirm)
	s.setString("modbus", os.Getenv("FILASWITCH_MODBUS"), &cfg.ModbusEndpoint)

	if err := s.setIntFromString("ports", os.Getenv("FILASWITCH_PORTS"), &cfg.Ports); err != nil {
		return err
	}
	if err := s.setIntFromString("peripheral-baud", os.Getenv("FILASWITCH_PERIPHERAL_BAUD"), &cfg.PeripheralBaud); err != nil {
		return err
	}
	if err := s.setIntFromString("printer-baud", os.Getenv("FILASWITCH_PRINTER_BAUD"), &cfg.PrinterBaud); err != nil {
		return err
	}
	if err := s.setIntFromString("max-load-attempts", os.Getenv("FILASWITCH_MAX_LOAD_ATTEMPTS"), &cfg.MaxLoadAttempts); err != nil {
		return err
	}

	if err := s.setDuration("timeout", os.Getenv("FILASWITCH_RESPONSE_TIMEOUT"), &cfg.ResponseTimeout); err != nil {
		return err
	}
	if err := s.setDuration("grip-dwell", os.Getenv("FILASWITCH_GRIP_DWELL"), &cfg.GripDwell); err != nil {
		return err
	}
	if err := s.setDuration("settle", os.Getenv("FILASWITCH_SETTLE_DELAY"), &cfg.SettleDelay); err != nil {
		return err
	}

	if err := s.setFloatFromString("min-temp", os.Getenv("FILASWITCH_MIN_EXTRUDE_TEMP"), &cfg.MinExtrudeTemp); err != nil {
		return err
	}

	if err := s.setIntsFromString("angles", os.Getenv("FILASWITCH_ANGLES"), &cfg.Angles); err != nil {
		return err
	}

	s.setBoolFromString("simulate", os.Getenv("FILASWITCH_SIMULATE"), &cfg.Simulate)

	return nil
}
