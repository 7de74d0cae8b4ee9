package filaswitch

import (
	"io"
	"time"

	"github.com/bft-labs/filaswitch/pkg/log"
)

// Clock is the time source used for polling, timeouts and simulated motion.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Option configures optional behavior of a Switch.
type Option func(*options)

type options struct {
	logger       log.Logger
	eventHandler EventHandler
	plugins      []Plugin
	clock        Clock
	configPath   string

	consoleLines <-chan string
	consoleOut   io.Writer
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for phase changes.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin. Plugins are initialized in registration
// order and shut down in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithConfigPath names the config file. Angle edits are saved to it and
// plugins may watch it.
func WithConfigPath(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithConsole attaches an operator console. Status messages are echoed to
// out, and when confirmation is configured as "console" the operator
// confirms by entering a line on lines.
func WithConsole(lines <-chan string, out io.Writer) Option {
	return func(o *options) {
		o.consoleLines = lines
		o.consoleOut = out
	}
}
