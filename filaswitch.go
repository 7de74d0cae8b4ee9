// Package filaswitch controls a filament port switch that lets several
// spools share one extruder.
//
// Example usage:
//
//	cfg := filaswitch.DefaultConfig()
//	cfg.Simulate = true
//	sw, err := filaswitch.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sw.Stop()
//	reply, err := sw.Execute(ctx, "T1")
package filaswitch

import (
	"github.com/bft-labs/filaswitch/pkg/filaswitch"
)

// Config holds the switch configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = filaswitch.Config

// Switch is a running filament port switch.
type Switch = filaswitch.Switch

// Option configures optional behavior of a Switch.
type Option = filaswitch.Option

// New validates cfg and creates a stopped switch.
func New(cfg Config, opts ...Option) (*Switch, error) {
	return filaswitch.New(cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
// Set the printer and peripheral devices, or Simulate, before calling New.
func DefaultConfig() Config {
	return filaswitch.DefaultConfig()
}
