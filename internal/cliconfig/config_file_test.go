package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig fileConfig
		changed    map[string]bool
		initial    Config
		check      func(t *testing.T, cfg Config)
	}{
		{
			name: "applies values",
			fileConfig: fileConfig{
				Variant:         "local",
				Ports:           3,
				ResponseTimeout: "1500ms",
				MinExtrudeTemp:  190,
				Angles:          []int{20, 80, 140},
				Simulate:        &trueVal,
			},
			initial: DefaultConfig(),
			check: func(t *testing.T, cfg Config) {
				if cfg.Variant != "local" || cfg.Ports != 3 {
					t.Errorf("Variant/Ports = %v/%v, want local/3", cfg.Variant, cfg.Ports)
				}
				if cfg.ResponseTimeout != 1500*time.Millisecond {
					t.Errorf("ResponseTimeout = %v, want 1.5s", cfg.ResponseTimeout)
				}
				if cfg.MinExtrudeTemp != 190 {
					t.Errorf("MinExtrudeTemp = %v, want 190", cfg.MinExtrudeTemp)
				}
				if len(cfg.Angles) != 3 || cfg.Angles[1] != 80 {
					t.Errorf("Angles = %v, want [20 80 140]", cfg.Angles)
				}
				if !cfg.Simulate {
					t.Error("Simulate = false, want true")
				}
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: fileConfig{PrinterDevice: "/dev/file", Ports: 6},
			changed:    map[string]bool{"printer": true},
			initial:    Config{PrinterDevice: "/dev/flag", Ports: 2},
			check: func(t *testing.T, cfg Config) {
				if cfg.PrinterDevice != "/dev/flag" {
					t.Errorf("PrinterDevice = %v, want /dev/flag", cfg.PrinterDevice)
				}
				if cfg.Ports != 6 {
					t.Errorf("Ports = %v, want 6", cfg.Ports)
				}
			},
		},
		{
			name:       "zero values keep defaults",
			fileConfig: fileConfig{},
			initial:    DefaultConfig(),
			check: func(t *testing.T, cfg Config) {
				if cfg.GripDwell != time.Second || cfg.NudgeMM != 10 {
					t.Errorf("GripDwell/NudgeMM = %v/%v, want defaults", cfg.GripDwell, cfg.NudgeMM)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			if err := applyFileConfig(&cfg, tt.fileConfig, tt.changed); err != nil {
				t.Fatalf("applyFileConfig() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestApplyFileConfig_InvalidDuration(t *testing.T) {
	cfg := DefaultConfig()
	if err := applyFileConfig(&cfg, fileConfig{FeedWindow: "3 seconds"}, nil); err == nil {
		t.Error("applyFileConfig() expected error for invalid duration")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
variant = "protocol"
peripheral_device = "/dev/ttyUSB3"
printer_device = "/dev/ttyACM1"
grip_dwell = "750ms"
angles = [15, 55, 95, 135]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FILASWITCH_PRINTER", "/dev/ttyACM9")

	cfg := DefaultConfig()
	if err := Load(&cfg, path, map[string]bool{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PeripheralDevice != "/dev/ttyUSB3" {
		t.Errorf("PeripheralDevice = %v, want /dev/ttyUSB3", cfg.PeripheralDevice)
	}
	if cfg.PrinterDevice != "/dev/ttyACM9" {
		t.Errorf("PrinterDevice = %v, want env override /dev/ttyACM9", cfg.PrinterDevice)
	}
	if cfg.GripDwell != 750*time.Millisecond {
		t.Errorf("GripDwell = %v, want 750ms", cfg.GripDwell)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := DefaultConfig()
	if err := Load(&cfg, filepath.Join(t.TempDir(), "absent.toml"), nil); err == nil {
		t.Error("Load should fail for an explicit missing file")
	}
}

func TestSaveAngles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("printer_device = \"/dev/ttyACM0\"\nangles = [1, 2]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := SaveAngles(path, []int{25, 65, 105}); err != nil {
		t.Fatalf("SaveAngles: %v", err)
	}

	angles, err := LoadAngles(path)
	if err != nil {
		t.Fatalf("LoadAngles: %v", err)
	}
	if len(angles) != 3 || angles[0] != 25 || angles[2] != 105 {
		t.Errorf("angles = %v, want [25 65 105]", angles)
	}
	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig: %v", err)
	}
	if fc.PrinterDevice != "/dev/ttyACM0" {
		t.Errorf("PrinterDevice = %q, want it preserved", fc.PrinterDevice)
	}
}

func TestSaveAngles_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := SaveAngles(path, []int{40}); err != nil {
		t.Fatalf("SaveAngles: %v", err)
	}
	angles, err := LoadAngles(path)
	if err != nil || len(angles) != 1 || angles[0] != 40 {
		t.Errorf("LoadAngles = %v, %v; want [40]", angles, err)
	}
}
