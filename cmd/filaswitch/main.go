package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/filaswitch/internal/cliconfig"
	"github.com/bft-labs/filaswitch/pkg/log"
)

const helpDescription = `
Drive a BAFSD-style filament port switch next to a Marlin printer.

Several spools share one extruder. On a tool change filaswitch retracts the
loaded filament past the switching gear, selects the new port, and feeds
until the filament sensor confirms it, asking the operator for help when it
cannot.

Variants:
  protocol  a switching peripheral on its own serial link (T<n>, M412, C<n>)
  local     a servo and presence switch on a Modbus TCP I/O module

Configuration is read from flags, FILASWITCH_* environment variables and
$HOME/.filaswitch/config.toml, in that order of precedence.
`

var exampleUsage = strings.TrimSpace(`
  filaswitch run --printer /dev/ttyACM0 --peripheral /dev/ttyUSB0
  filaswitch run --variant local --printer /dev/ttyACM0 --modbus 192.168.1.40:502
  filaswitch run --simulate
  filaswitch angles A30 C115
  filaswitch devices
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by all subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  log.Logger
}

// load applies the config file and environment under the flags the user
// set on cmd, then builds the logger at the configured level.
func (c *cli) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if err := cliconfig.Load(&c.cfg, c.cfgPath, changed); err != nil {
		return err
	}
	logger, err := cliconfig.NewLogger(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// configFile is the file angle edits are saved to.
func (c *cli) configFile() string {
	if c.cfgPath != "" {
		return c.cfgPath
	}
	return cliconfig.DefaultConfigPath()
}

func main() {
	fallback, _ := cliconfig.NewLogger("info")
	c := &cli{cfg: cliconfig.DefaultConfig(), logger: fallback}

	root := &cobra.Command{
		Use:           "filaswitch",
		Short:         "Filament port switch controller",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	bindFlags(root.PersistentFlags(), c)

	root.AddCommand(
		runCommand(c),
		selectCommand(c),
		anglesCommand(c),
		devicesCommand(c),
		resetCommand(c),
		triggerCommand(c),
	)

	if err := root.Execute(); err != nil {
		c.logger.Error("filaswitch", log.Err(err))
		os.Exit(1)
	}
}

func bindFlags(fs *pflag.FlagSet, c *cli) {
	cfg := &c.cfg

	fs.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.filaswitch/config.toml)")
	fs.StringVar(&cfg.Variant, "variant", cfg.Variant, "hardware variant: protocol or local")
	fs.IntVar(&cfg.Ports, "ports", cfg.Ports, "number of filament ports")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "run against a simulated switch and printer")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	fs.StringVar(&cfg.PeripheralDevice, "peripheral", cfg.PeripheralDevice, "peripheral serial device (protocol variant)")
	fs.IntVar(&cfg.PeripheralBaud, "peripheral-baud", cfg.PeripheralBaud, "peripheral baud rate")
	fs.DurationVar(&cfg.ResponseTimeout, "timeout", cfg.ResponseTimeout, "peripheral response timeout")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "idle step while awaiting a peripheral response")
	fs.IntVar(&cfg.NudgeMM, "nudge", cfg.NudgeMM, "corrective feed length in mm (C<n>)")
	fs.DurationVar(&cfg.GripDwell, "grip-dwell", cfg.GripDwell, "wait after selecting a port before feeding")

	fs.StringVar(&cfg.PrinterDevice, "printer", cfg.PrinterDevice, "printer serial device")
	fs.IntVar(&cfg.PrinterBaud, "printer-baud", cfg.PrinterBaud, "printer baud rate")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "printer command timeout")
	fs.DurationVar(&cfg.MotionTimeout, "motion-timeout", cfg.MotionTimeout, "timeout for queued moves to finish")
	fs.Float64Var(&cfg.MinExtrudeTemp, "min-temp", cfg.MinExtrudeTemp, "minimum hotend temperature for a tool change")
	fs.Float64Var(&cfg.ParkX, "park-x", cfg.ParkX, "park X position during operator intervention")
	fs.Float64Var(&cfg.ParkY, "park-y", cfg.ParkY, "park Y position during operator intervention")
	fs.Float64Var(&cfg.ParkZRaise, "park-z", cfg.ParkZRaise, "Z raise while parked")
	fs.StringVar(&cfg.Confirm, "confirm", cfg.Confirm, "operator confirmation source: printer or console")

	fs.StringVar(&cfg.ModbusEndpoint, "modbus", cfg.ModbusEndpoint, "Modbus TCP I/O module host:port (local variant)")
	fs.IntVar(&cfg.ModbusUnitID, "modbus-unit", cfg.ModbusUnitID, "Modbus unit id")
	fs.DurationVar(&cfg.ModbusTimeout, "modbus-timeout", cfg.ModbusTimeout, "Modbus request timeout")
	fs.IntVar(&cfg.PresenceInput, "presence-input", cfg.PresenceInput, "discrete input wired to the presence switch")
	fs.IntVar(&cfg.AngleRegister, "angle-register", cfg.AngleRegister, "holding register taking the servo angle")
	fs.IntVar(&cfg.EnableCoil, "enable-coil", cfg.EnableCoil, "coil enabling the servo output")
	fs.IntVar(&cfg.ServoIndex, "servo", cfg.ServoIndex, "servo number reported in M281 lines")
	fs.IntSliceVar(&cfg.Angles, "angles", cfg.Angles, "servo angle per port, comma separated")
	fs.IntVar(&cfg.FeedAngle, "feed-angle", cfg.FeedAngle, "servo angle of the corrective feed pulse")
	fs.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "servo hold time before detaching")

	fs.Float64Var(&cfg.RetractStepMM, "retract-step", cfg.RetractStepMM, "unload retract step in mm")
	fs.Float64Var(&cfg.RetractFeedrate, "retract-feedrate", cfg.RetractFeedrate, "unload feedrate in mm/min")
	fs.Float64Var(&cfg.GearClearanceMM, "gear-clearance", cfg.GearClearanceMM, "retract past the sensor to clear the gear, in mm")
	fs.Float64Var(&cfg.MaxUnloadMM, "max-unload", cfg.MaxUnloadMM, "maximum unload retract in mm")
	fs.Float64Var(&cfg.FeedFeedrate, "feed-feedrate", cfg.FeedFeedrate, "load feedrate in mm/min")
	fs.DurationVar(&cfg.FeedWindow, "feed-window", cfg.FeedWindow, "time allowed per load attempt")
	fs.DurationVar(&cfg.FeedSettle, "feed-settle", cfg.FeedSettle, "pause between load steps")
	fs.IntVar(&cfg.MaxLoadAttempts, "max-load-attempts", cfg.MaxLoadAttempts, "load attempts before a corrective nudge")
}
