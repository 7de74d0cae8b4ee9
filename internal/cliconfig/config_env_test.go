package cliconfig

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"FILASWITCH_VARIANT":          "local",
				"FILASWITCH_PORTS":            "3",
				"FILASWITCH_MODBUS":           "10.0.0.5:502",
				"FILASWITCH_RESPONSE_TIMEOUT": "250ms",
				"FILASWITCH_GRIP_DWELL":       "2s",
				"FILASWITCH_MIN_EXTRUDE_TEMP": "190.5",
				"FILASWITCH_ANGLES":           "10, 50,90",
				"FILASWITCH_SIMULATE":         "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Variant:         VariantLocal,
				Ports:           3,
				ModbusEndpoint:  "10.0.0.5:502",
				ResponseTimeout: 250 * time.Millisecond,
				GripDwell:       2 * time.Second,
				MinExtrudeTemp:  190.5,
				Angles:          []int{10, 50, 90},
				Simulate:        true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"FILASWITCH_PRINTER": "/dev/env-printer",
				"FILASWITCH_PORTS":   "6",
			},
			changed: map[string]bool{"printer": true},
			initial: Config{PrinterDevice: "/dev/flag-printer"},
			expected: Config{
				PrinterDevice: "/dev/flag-printer",
				Ports:         6,
			},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"FILASWITCH_GRIP_DWELL": "soon"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"FILASWITCH_PORTS": "four"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid float",
			envVars: map[string]string{"FILASWITCH_MIN_EXTRUDE_TEMP": "hot"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid angle list",
			envVars: map[string]string{"FILASWITCH_ANGLES": "30,x"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool '1' as true",
			envVars:  map[string]string{"FILASWITCH_SIMULATE": "1"},
			changed:  map[string]bool{},
			expected: Config{Simulate: true},
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"FILASWITCH_SIMULATE": "false"},
			changed:  map[string]bool{},
			initial:  Config{Simulate: true},
			expected: Config{Simulate: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("config = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	fc := fileConfig{
		PrinterDevice:    "/dev/file-printer",
		PeripheralDevice: "/dev/file-peripheral",
		Ports:            5,
		GripDwell:        "3s",
	}

	t.Setenv("FILASWITCH_PRINTER", "/dev/env-printer")
	t.Setenv("FILASWITCH_PERIPHERAL", "/dev/env-peripheral")

	// The printer flag was set on the command line.
	changed := map[string]bool{"printer": true}
	cfg := DefaultConfig()
	cfg.PrinterDevice = "/dev/cli-printer"

	if err := applyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("applyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.PrinterDevice != "/dev/cli-printer" {
		t.Errorf("PrinterDevice = %v, want /dev/cli-printer (CLI should win)", cfg.PrinterDevice)
	}
	if cfg.PeripheralDevice != "/dev/env-peripheral" {
		t.Errorf("PeripheralDevice = %v, want /dev/env-peripheral (env should override file)", cfg.PeripheralDevice)
	}
	if cfg.Ports != 5 {
		t.Errorf("Ports = %v, want 5 (file should set)", cfg.Ports)
	}
	if cfg.GripDwell != 3*time.Second {
		t.Errorf("GripDwell = %v, want 3s (file should set)", cfg.GripDwell)
	}
}
