package filaswitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bft-labs/filaswitch/internal/adapters/console"
	"github.com/bft-labs/filaswitch/internal/adapters/gcode"
	"github.com/bft-labs/filaswitch/internal/adapters/modbus"
	"github.com/bft-labs/filaswitch/internal/adapters/serial"
	"github.com/bft-labs/filaswitch/internal/adapters/sim"
	"github.com/bft-labs/filaswitch/internal/app"
	"github.com/bft-labs/filaswitch/internal/cliconfig"
	"github.com/bft-labs/filaswitch/internal/command"
	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/link"
	"github.com/bft-labs/filaswitch/internal/local"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/internal/protocol"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Config holds the switch configuration.
type Config = cliconfig.Config

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Snapshot is a consistent view of the current port, the pending port and the phase.
type Snapshot = app.Snapshot

// Port identifies a filament feed port.
type Port = domain.Port

// NoPort means no port has been engaged yet.
const NoPort = domain.NoPort

// Lifecycle and request errors.
var (
	ErrAlreadyRunning   = domain.ErrAlreadyRunning
	ErrNotRunning       = domain.ErrNotRunning
	ErrSwitchInProgress = domain.ErrSwitchInProgress
)

// Switch is a filament port switch: the hardware links, the controller
// and its plugins. Use New, then Start.
type Switch struct {
	cfg    Config
	opts   options
	clock  ports.Clock
	logger log.Logger
	angles *domain.AngleTable

	// exec serializes requests that use the peripheral or the printer.
	exec sync.Mutex

	mu         sync.RWMutex
	running    bool
	runCtx     context.Context
	cancel     context.CancelFunc
	closers    []io.Closer
	ctl        *app.Controller
	dispatcher *command.Dispatcher
	bench      *sim.Bench
}

// New validates cfg and creates a stopped switch.
func New(cfg Config, opts ...Option) (*Switch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Confirm == cliconfig.ConfirmConsole && o.consoleLines == nil {
		return nil, fmt.Errorf("%w: console confirmation needs a console", domain.ErrInvalidConfig)
	}

	var clock ports.Clock = ports.SystemClock{}
	if o.clock != nil {
		clock = o.clock
	}

	return &Switch{
		cfg:    cfg,
		opts:   o,
		clock:  clock,
		logger: o.logger,
		angles: domain.NewAngleTable(cfg.Angles),
	}, nil
}

// assembly is the wired hardware of one run.
type assembly struct {
	variant app.Variant
	house   command.Housekeeper
	motion  ports.Motion
	print   ports.PrintControl
	thermo  ports.Thermometer
	status  ports.StatusReporter
	closers []io.Closer
}

func (a *assembly) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// Start opens the links, builds the controller and initializes plugins.
// Requests and plugins are cancelled when ctx ends or Stop is called.
func (s *Switch) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	var (
		a   *assembly
		err error
	)
	if s.cfg.Simulate {
		a = s.simulate()
	} else {
		a, err = s.open(runCtx)
		if err != nil {
			cancel()
			return err
		}
	}
	s.attachConsole(a)

	ctl := app.NewController(s.cfg.ControllerConfig(), app.Deps{
		Variant:      a.variant,
		Motion:       a.motion,
		PrintControl: a.print,
		Thermometer:  a.thermo,
		Status:       a.status,
		Clock:        s.clock,
		Logger:       s.logger,
		Emitter:      phaseEmitter{handler: s.opts.eventHandler},
	})

	var store *command.AngleStore
	if s.cfg.Variant == cliconfig.VariantLocal {
		store = &command.AngleStore{Table: s.angles, Servo: s.cfg.ServoIndex, Save: s.saveAngles}
	}
	dispatcher := command.NewDispatcher(ctl, a.variant.Sensor, a.house, store, s.logger)

	pluginCfg := PluginConfig{
		ConfigPath: s.opts.configPath,
		Ports:      s.cfg.Ports,
		Logger:     s.logger,
	}
	if s.cfg.Variant == cliconfig.VariantLocal {
		pluginCfg.Angles = s.angles
	}
	for i, p := range s.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed", log.String("plugin", p.Name()), log.Err(err))
			cancel()
			s.shutdownPlugins(s.opts.plugins[:i])
			a.close()
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	s.runCtx = runCtx
	s.cancel = cancel
	s.closers = a.closers
	s.ctl = ctl
	s.dispatcher = dispatcher
	s.running = true

	s.logger.Info("filaswitch started",
		log.String("variant", s.cfg.Variant),
		log.Int("ports", s.cfg.Ports),
		log.Bool("simulate", s.cfg.Simulate))
	return nil
}

// simulate wires the variant to an in-process bench.
func (s *Switch) simulate() *assembly {
	b := sim.NewBench(s.cfg.Ports, s.angles, s.clock)
	s.bench = b

	a := &assembly{motion: b, print: b, thermo: b, status: b}
	switch s.cfg.Variant {
	case cliconfig.VariantLocal:
		a.variant = s.localVariant(b, sim.Input{B: b})
	default:
		p := protocol.New(link.New(b, s.clock, s.logger, s.cfg.LinkConfig()), s.logger, s.cfg.ProtocolConfig())
		a.variant = s.protocolVariant(p)
		a.house = p
	}
	return a
}

// open connects to the printer and to the variant's hardware.
func (s *Switch) open(ctx context.Context) (*assembly, error) {
	a := &assembly{}

	printer, err := serial.Open(ctx, s.cfg.PrinterSerial(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("open printer: %w", err)
	}
	a.closers = append(a.closers, printer)

	host := gcode.NewHost(printer, s.logger, s.cfg.PrinterConfig())
	a.closers = append(a.closers, host)
	a.motion, a.print, a.thermo, a.status = host, host, host, host

	switch s.cfg.Variant {
	case cliconfig.VariantLocal:
		m, err := modbus.Dial(s.cfg.ModbusConfig(), s.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open I/O module: %w", err)
		}
		a.closers = append(a.closers, m)
		a.variant = s.localVariant(m, m)

	default:
		port, err := serial.Open(ctx, s.cfg.PeripheralSerial(), s.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open peripheral: %w", err)
		}
		a.closers = append(a.closers, port)
		p := protocol.New(link.New(port, s.clock, s.logger, s.cfg.LinkConfig()), s.logger, s.cfg.ProtocolConfig())
		a.variant = s.protocolVariant(p)
		a.house = p
	}
	return a, nil
}

func (s *Switch) protocolVariant(p *protocol.Peripheral) app.Variant {
	return app.Variant{
		Name:      cliconfig.VariantProtocol,
		Sensor:    p,
		Actuator:  p,
		GripDwell: s.cfg.GripDwell,
	}
}

func (s *Switch) localVariant(servo ports.Servo, in ports.DigitalInput) app.Variant {
	return app.Variant{
		Name:     cliconfig.VariantLocal,
		Sensor:   local.NewSensor(in),
		Actuator: local.NewActuator(servo, s.angles, s.clock, s.logger, s.cfg.LocalConfig()),
	}
}

// attachConsole routes status and, if configured, confirmation through the console.
func (s *Switch) attachConsole(a *assembly) {
	if s.opts.consoleOut != nil {
		a.status = console.Tee{a.status, console.NewStatus(s.opts.consoleOut)}
	}
	if s.cfg.Confirm == cliconfig.ConfirmConsole {
		out := s.opts.consoleOut
		if out == nil {
			out = io.Discard
		}
		a.print = console.WithConfirmer(a.print, console.NewConfirmer(s.opts.consoleLines, out))
	}
}

func (s *Switch) saveAngles(angles []int) error {
	if s.opts.configPath == "" {
		return nil
	}
	return cliconfig.SaveAngles(s.opts.configPath, angles)
}

// Stop cancels in-flight work and waits for it to return, shuts plugins
// down in reverse order and closes the links.
func (s *Switch) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.cancel()
	s.running = false
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	// Wait for the cancelled request to return.
	s.exec.Lock()
	s.exec.Unlock()

	s.shutdownPlugins(s.opts.plugins)

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("filaswitch stopped")
	return errors.Join(errs...)
}

func (s *Switch) shutdownPlugins(plugins []Plugin) {
	ctx := context.Background()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed", log.String("plugin", p.Name()), log.Err(err))
			continue
		}
		s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
	}
}

// run is the state of one Start..Stop cycle.
type run struct {
	ctx        context.Context
	ctl        *app.Controller
	dispatcher *command.Dispatcher
}

func (s *Switch) active() (run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return run{}, ErrNotRunning
	}
	return run{ctx: s.runCtx, ctl: s.ctl, dispatcher: s.dispatcher}, nil
}

// requestContext returns a context that ends with ctx or when the run stops.
func (r run) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

// Select runs a tool change to port. Stop cancels it.
func (s *Switch) Select(ctx context.Context, port int) error {
	r, err := s.active()
	if err != nil {
		return err
	}
	if !s.exec.TryLock() {
		return ErrSwitchInProgress
	}
	defer s.exec.Unlock()

	ctx, cancel := r.requestContext(ctx)
	defer cancel()
	return r.ctl.SelectPort(ctx, domain.Port(port))
}

// Execute parses and runs one console request ("T1", "M412", "M709",
// "M240 D500", "M281 A30", "status") and returns its reply. Only "status"
// is answered while another request is running. Stop cancels the request.
func (s *Switch) Execute(ctx context.Context, line string) (string, error) {
	r, err := s.active()
	if err != nil {
		return "", err
	}
	req, err := command.Parse(line)
	if err != nil {
		return "", err
	}
	if req.Kind != command.KindStatus {
		if !s.exec.TryLock() {
			return "", ErrSwitchInProgress
		}
		defer s.exec.Unlock()
	}

	ctx, cancel := r.requestContext(ctx)
	defer cancel()
	return r.dispatcher.Execute(ctx, req)
}

// Snapshot returns the controller state. It is NoPort/Idle before Start.
func (s *Switch) Snapshot() Snapshot {
	r, err := s.active()
	if err != nil {
		return Snapshot{Current: NoPort, Pending: NoPort, Phase: domain.PhaseIdle}
	}
	return r.ctl.Snapshot()
}

// Angles returns the current servo angle table.
func (s *Switch) Angles() []int {
	return s.angles.Snapshot()
}
