package filaswitch

import (
	"context"

	"github.com/bft-labs/filaswitch/pkg/log"
)

// Plugin is an optional component started and stopped with the switch.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize starts the plugin. ctx is cancelled when the switch stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// AngleTable is the live servo angle table of the local variant.
type AngleTable interface {
	Snapshot() []int
	Replace(angles []int)
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	// ConfigPath is the TOML file the configuration was loaded from. May be empty.
	ConfigPath string

	// Ports is the configured port count.
	Ports int

	// Angles is nil unless the local variant is active.
	Angles AngleTable

	Logger log.Logger
}
