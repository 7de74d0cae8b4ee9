package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/filaswitch/internal/adapters/console"
	"github.com/bft-labs/filaswitch/internal/adapters/serial"
	"github.com/bft-labs/filaswitch/internal/cliconfig"
	"github.com/bft-labs/filaswitch/internal/command"
	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/pkg/filaswitch"
	"github.com/bft-labs/filaswitch/pkg/log"
	"github.com/bft-labs/filaswitch/plugins/anglewatcher"
)

// start creates and starts a switch attached to the console lines,
// returning it with a context that ends on SIGINT or SIGTERM.
func (c *cli) start(lines <-chan string, opts ...filaswitch.Option) (*filaswitch.Switch, context.Context, context.CancelFunc, error) {
	opts = append([]filaswitch.Option{
		filaswitch.WithLogger(c.logger),
		filaswitch.WithConfigPath(c.configFile()),
		filaswitch.WithConsole(lines, os.Stdout),
	}, opts...)

	sw, err := filaswitch.New(c.cfg, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := sw.Start(ctx); err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("start: %w", err)
	}
	return sw, ctx, stop, nil
}

func (c *cli) stop(sw *filaswitch.Switch, cancel context.CancelFunc) {
	cancel()
	if err := sw.Stop(); err != nil {
		c.logger.Warn("stop", log.Err(err))
	}
}

func runCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve tool change requests from stdin",
		Long: strings.TrimSpace(`
Read requests from stdin, one per line, and print one reply per line:

  T<n>            tool change to port n
  M412            filament presence at the sensor
  M709            reset the peripheral
  M240 D<ms>      fire the auxiliary trigger after a delay
  M281 [A<deg>..] report or edit servo angles (local variant)
  status          current port, pending port and phase

Text after ';' is ignored. Status messages are printed as "// <message>".`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := console.Lines(os.Stdin, c.logger)

			var opts []filaswitch.Option
			if path := c.configFile(); path != "" && cliconfig.FileExists(path) {
				opts = append(opts, anglewatcher.WithAngleWatcher(anglewatcher.DefaultConfig()))
			}

			sw, ctx, cancel, err := c.start(lines, opts...)
			if err != nil {
				return err
			}
			defer c.stop(sw, cancel)

			for {
				select {
				case <-ctx.Done():
					c.logger.Info("received signal, stopping")
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					reply, err := sw.Execute(ctx, line)
					if err != nil {
						c.logger.Warn("request failed", log.String("request", line), log.Err(err))
						fmt.Fprintf(os.Stdout, "error: %v\n", err)
						continue
					}
					fmt.Fprintln(os.Stdout, reply)
				}
			}
		},
	}
}

// parsePort accepts "2", "T2" or the port letter "C".
func parsePort(s string) (int, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "T")
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if len(s) == 1 {
		if p, ok := domain.PortForLetter(s[0]); ok {
			return int(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrInvalidPort, s)
}

func selectCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "select <port>",
		Short: "Engage a port once, with no filament loaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			sw, ctx, cancel, err := c.start(console.Lines(os.Stdin, c.logger))
			if err != nil {
				return err
			}
			defer c.stop(sw, cancel)

			if err := sw.Select(ctx, port); err != nil {
				return err
			}
			s := sw.Snapshot()
			fmt.Fprintf(os.Stdout, "current=%s\n", s.Current)
			return nil
		},
	}
}

func anglesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "angles [A<deg> B<deg> ...]",
		Short: "Report or edit the servo angle table in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(os.Stdout, command.FormatAngles(c.cfg.ServoIndex, c.cfg.Angles))
				return nil
			}
			edits, err := command.ParseAngleWords(args)
			if err != nil {
				return err
			}
			path := c.configFile()
			if path == "" {
				return errors.New("no config file to save angles to")
			}
			store := &command.AngleStore{
				Table: domain.NewAngleTable(c.cfg.Angles),
				Save:  func(angles []int) error { return cliconfig.SaveAngles(path, angles) },
			}
			next, err := store.Apply(edits)
			if err != nil {
				return err
			}
			c.logger.Info("servo angles saved", log.String("path", path))
			fmt.Fprintln(os.Stdout, command.FormatAngles(c.cfg.ServoIndex, next))
			return nil
		},
	}
}

func devicesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List serial devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := serial.ListDevices()
			if err != nil {
				return err
			}
			if len(devs) == 0 {
				fmt.Fprintln(os.Stdout, "no serial devices found")
				return nil
			}
			for _, d := range devs {
				fmt.Fprintln(os.Stdout, d.String())
			}
			return nil
		},
	}
}

// request starts a switch, runs one request line and prints the reply.
func (c *cli) request(line string) error {
	sw, ctx, cancel, err := c.start(console.Lines(os.Stdin, c.logger))
	if err != nil {
		return err
	}
	defer c.stop(sw, cancel)

	reply, err := sw.Execute(ctx, line)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, reply)
	return nil
}

func resetCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the switching peripheral (M709)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request("M709")
		},
	}
}

func triggerCommand(c *cli) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Fire the peripheral's auxiliary output (M240)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(fmt.Sprintf("M240 D%d", delay.Milliseconds()))
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the trigger fires")
	return cmd
}
