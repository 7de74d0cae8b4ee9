package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations to make TOML friendly.
type fileConfig struct {
	Variant  string `toml:"variant"`
	Ports    int    `toml:"ports"`
	Simulate *bool  `toml:"simulate"`
	LogLevel string `toml:"log_level"`

	PeripheralDevice string `toml:"peripheral_device"`
	PeripheralBaud   int    `toml:"peripheral_baud"`
	ResponseTimeout  string `toml:"response_timeout"`
	PollInterval     string `toml:"poll_interval"`
	NudgeMM          int    `toml:"nudge_mm"`
	GripDwell        string `toml:"grip_dwell"`

	PrinterDevice  string  `toml:"printer_device"`
	PrinterBaud    int     `toml:"printer_baud"`
	CommandTimeout string  `toml:"command_timeout"`
	MotionTimeout  string  `toml:"motion_timeout"`
	MinExtrudeTemp float64 `toml:"min_extrude_temp"`
	ParkX          float64 `toml:"park_x"`
	ParkY          float64 `toml:"park_y"`
	ParkZRaise     float64 `toml:"park_z_raise"`
	Confirm        string  `toml:"confirm"`

	ModbusEndpoint string `toml:"modbus_endpoint"`
	ModbusUnitID   int    `toml:"modbus_unit_id"`
	ModbusTimeout  string `toml:"modbus_timeout"`
	PresenceInput  int    `toml:"presence_input"`
	AngleRegister  int    `toml:"angle_register"`
	EnableCoil     int    `toml:"enable_coil"`
	ServoIndex     int    `toml:"servo_index"`
	Angles         []int  `toml:"angles"`
	FeedAngle      int    `toml:"feed_angle"`
	SettleDelay    string `toml:"settle_delay"`

	RetractStepMM   float64 `toml:"retract_step_mm"`
	RetractFeedrate float64 `toml:"retract_feedrate"`
	GearClearanceMM float64 `toml:"gear_clearance_mm"`
	MaxUnloadMM     float64 `toml:"max_unload_mm"`
	FeedFeedrate    float64 `toml:"feed_feedrate"`
	FeedWindow      string  `toml:"feed_window"`
	FeedSettle      string  `toml:"feed_settle"`
	MaxLoadAttempts int     `toml:"max_load_attempts"`
}

// loadFileConfig reads and parses a TOML config file.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// defaultConfigPath returns the default configuration file path.
// Returns ~/.filaswitch/config.toml if user home directory is accessible.
func defaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".filaswitch", "config.toml")
	}
	return ""
}

// applyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func applyFileConfig(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("variant", fc.Variant, &cfg.Variant)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("peripheral", fc.PeripheralDevice, &cfg.PeripheralDevice)
	s.setString("printer", fc.PrinterDevice, &cfg.PrinterDevice)
	s.setString("confirm", fc.Confirm, &cfg.Confirm)
	s.setString("modbus", fc.ModbusEndpoint, &cfg.ModbusEndpoint)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"timeout", fc.ResponseTimeout, &cfg.ResponseTimeout},
		{"poll-interval", fc.PollInterval, &cfg.PollInterval},
		{"grip-dwell", fc.GripDwell, &cfg.GripDwell},
		{"command-timeout", fc.CommandTimeout, &cfg.CommandTimeout},
		{"motion-timeout", fc.MotionTimeout, &cfg.MotionTimeout},
		{"modbus-timeout", fc.ModbusTimeout, &cfg.ModbusTimeout},
		{"settle", fc.SettleDelay, &cfg.SettleDelay},
		{"feed-window", fc.FeedWindow, &cfg.FeedWindow},
		{"feed-settle", fc.FeedSettle, &cfg.FeedSettle},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("ports", fc.Ports, &cfg.Ports)
	s.setInt("peripheral-baud", fc.PeripheralBaud, &cfg.PeripheralBaud)
	s.setInt("nudge", fc.NudgeMM, &cfg.NudgeMM)
	s.setInt("printer-baud", fc.PrinterBaud, &cfg.PrinterBaud)
	s.setInt("modbus-unit", fc.ModbusUnitID, &cfg.ModbusUnitID)
	s.setInt("presence-input", fc.PresenceInput, &cfg.PresenceInput)
	s.setInt("angle-register", fc.AngleRegister, &cfg.AngleRegister)
	s.setInt("enable-coil", fc.EnableCoil, &cfg.EnableCoil)
	s.setInt("servo", fc.ServoIndex, &cfg.ServoIndex)
	s.setInt("feed-angle", fc.FeedAngle, &cfg.FeedAngle)
	s.setInt("max-load-attempts", fc.MaxLoadAttempts, &cfg.MaxLoadAttempts)
	s.setInts("angles", fc.Angles, &cfg.Angles)

	s.setFloat("min-temp", fc.MinExtrudeTemp, &cfg.MinExtrudeTemp)
	s.setFloat("park-x", fc.ParkX, &cfg.ParkX)
	s.setFloat("park-y", fc.ParkY, &cfg.ParkY)
	s.setFloat("park-z", fc.ParkZRaise, &cfg.ParkZRaise)
	s.setFloat("retract-step", fc.RetractStepMM, &cfg.RetractStepMM)
	s.setFloat("retract-feedrate", fc.RetractFeedrate, &cfg.RetractFeedrate)
	s.setFloat("gear-clearance", fc.GearClearanceMM, &cfg.GearClearanceMM)
	s.setFloat("max-unload", fc.MaxUnloadMM, &cfg.MaxUnloadMM)
	s.setFloat("feed-feedrate", fc.FeedFeedrate, &cfg.FeedFeedrate)

	s.setBool("simulate", fc.Simulate, &cfg.Simulate)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load builds the configuration: defaults, then the TOML file at path (or
// the default path when empty and present), then the environment. Values
// whose flag is in changed are left alone.
func Load(cfg *Config, path string, changed map[string]bool) error {
	if path == "" {
		if p := defaultConfigPath(); p != "" && FileExists(p) {
			path = p
		}
	}
	if path != "" {
		fc, err := loadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := applyFileConfig(cfg, fc, changed); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	return ApplyEnvConfig(cfg, changed)
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return defaultConfigPath()
}

// LoadAngles reads only the angle table from a config file.
func LoadAngles(path string) ([]int, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	return fc.Angles, nil
}

// SaveAngles rewrites the angles key of the config file, keeping the other
// keys. The file is replaced atomically so watchers never see it half written.
func SaveAngles(path string, angles []int) error {
	doc := map[string]interface{}{}
	if b, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	doc["angles"] = angles

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
