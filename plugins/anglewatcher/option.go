package anglewatcher

import "github.com/bft-labs/filaswitch/pkg/filaswitch"

// WithAngleWatcher returns a filaswitch Option that reloads servo angles
// when the config file changes.
//
// Usage:
//
//	sw, err := filaswitch.New(cfg,
//	    filaswitch.WithConfigPath(path),
//	    anglewatcher.WithAngleWatcher(anglewatcher.DefaultConfig()),
//	)
func WithAngleWatcher(cfg Config) filaswitch.Option {
	return filaswitch.WithPlugin(New(cfg))
}
