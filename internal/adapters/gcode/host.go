// Package gcode drives a Marlin-style printer over its serial G-code link.
// It provides the motion, print control, temperature and status services
// the port controller consumes.
package gcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// ErrPrinter is returned when the printer answers a command with an error line.
var ErrPrinter = errors.New("gcode: printer error")

// Config contains printer link timing.
type Config struct {
	// CommandTimeout bounds ordinary commands.
	CommandTimeout time.Duration

	// MotionTimeout bounds M400, which waits for queued moves to finish.
	MotionTimeout time.Duration
}

// DefaultConfig returns the printer link defaults.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 5 * time.Second,
		MotionTimeout:  2 * time.Minute,
	}
}

// Host sends one command at a time and waits for the printer's "ok".
type Host struct {
	mu     sync.Mutex
	w      io.Writer
	lines  <-chan string
	done   <-chan struct{}
	closed chan struct{}
	once   sync.Once
	logger log.Logger
	cfg    Config

	relativeE bool
}

// NewHost starts reading printer output from rw. The reader stops when rw
// returns an error or the host is closed.
func NewHost(rw io.ReadWriter, logger log.Logger, cfg Config) *Host {
	lines := make(chan string, 64)
	done := make(chan struct{})
	closed := make(chan struct{})
	logger = log.With(logger, log.String("component", "printer"))

	go func() {
		defer close(done)
		scan := bufio.NewScanner(pollReader{rw})
		for scan.Scan() {
			ln := strings.TrimSpace(scan.Text())
			if ln == "" {
				continue
			}
			select {
			case lines <- ln:
			case <-closed:
				return
			}
		}
		if err := scan.Err(); err != nil {
			logger.Error("printer read failed", log.Err(err))
		}
	}()

	return &Host{
		w:      rw,
		lines:  lines,
		done:   done,
		closed: closed,
		logger: logger,
		cfg:    cfg,
	}
}

// Close stops the reader from delivering output. It does not close the
// underlying link; a reader blocked in Read exits when the link is closed.
func (h *Host) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

// pollReader retries the empty reads a serial port returns when its read
// timeout expires, which bufio.Scanner would otherwise treat as a stall.
type pollReader struct{ r io.Reader }

func (p pollReader) Read(b []byte) (int, error) {
	for {
		n, err := p.r.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Exec sends cmd and returns the lines the printer reported before "ok".
// Text after "ok" on the same line (as in M105 replies) is included.
// A zero timeout waits until ctx ends.
func (h *Host) Exec(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exec(ctx, cmd, timeout)
}

func (h *Host) exec(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	h.drain()

	if _, err := io.WriteString(h.w, cmd+"\n"); err != nil {
		return nil, fmt.Errorf("%s: write: %w", cmd, err)
	}
	h.logger.Debug("sent", log.String("cmd", cmd))

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	var reply []string
	var failure string
	for {
		select {
		case ln := <-h.lines:
			switch {
			case ln == "ok":
			case strings.HasPrefix(ln, "ok "):
				reply = append(reply, strings.TrimPrefix(ln, "ok "))
			case strings.HasPrefix(ln, "Error:"):
				failure = strings.TrimPrefix(ln, "Error:")
				continue
			case strings.HasPrefix(ln, "echo:busy"):
				continue
			default:
				reply = append(reply, ln)
				continue
			}
			if failure != "" {
				return reply, fmt.Errorf("%s: %w: %s", cmd, ErrPrinter, failure)
			}
			return reply, nil
		case <-h.done:
			return reply, fmt.Errorf("%s: %w", cmd, io.ErrClosedPipe)
		case <-h.closed:
			return reply, fmt.Errorf("%s: %w", cmd, io.ErrClosedPipe)
		case <-expired:
			return reply, fmt.Errorf("%s: no ok after %v", cmd, timeout)
		case <-ctx.Done():
			return reply, ctx.Err()
		}
	}
}

// drain discards unsolicited output such as temperature auto-reports.
func (h *Host) drain() {
	for {
		select {
		case ln := <-h.lines:
			h.logger.Debug("unsolicited", log.String("line", ln))
		default:
			return
		}
	}
}

// MoveExtruderRelative queues an extruder-only move.
func (h *Host) MoveExtruderRelative(ctx context.Context, deltaMM, feedrateMMPerMin float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.relativeE {
		if _, err := h.exec(ctx, "M83", h.cfg.CommandTimeout); err != nil {
			return err
		}
		h.relativeE = true
	}
	_, err := h.exec(ctx, fmt.Sprintf("G1 E%.2f F%.0f", deltaMM, feedrateMMPerMin), h.cfg.CommandTimeout)
	return err
}

// Synchronize waits until all queued moves have finished.
func (h *Host) Synchronize(ctx context.Context) error {
	_, err := h.Exec(ctx, "M400", h.cfg.MotionTimeout)
	return err
}

// EnableExtruderDrive energizes the extruder stepper.
func (h *Host) EnableExtruderDrive(ctx context.Context) error {
	_, err := h.Exec(ctx, "M17 E", h.cfg.CommandTimeout)
	return err
}

// DisableExtruderDrive releases the extruder stepper.
func (h *Host) DisableExtruderDrive(ctx context.Context) error {
	_, err := h.Exec(ctx, "M18 E", h.cfg.CommandTimeout)
	return err
}

var hotendTemp = regexp.MustCompile(`(?:^|\s)T0?:\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// HotendTemperature reads the active hotend temperature with M105.
func (h *Host) HotendTemperature(ctx context.Context) (float64, error) {
	reply, err := h.Exec(ctx, "M105", h.cfg.CommandTimeout)
	if err != nil {
		return 0, err
	}
	for _, ln := range reply {
		if m := hotendTemp.FindStringSubmatch(ln); m != nil {
			return strconv.ParseFloat(m[1], 64)
		}
	}
	return 0, fmt.Errorf("M105: no hotend temperature in %q", reply)
}

// Pause pauses a running SD print and parks the toolhead. It reports
// whether a print was running.
func (h *Host) Pause(ctx context.Context, park ports.ParkPosition) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reply, err := h.exec(ctx, "M27", h.cfg.CommandTimeout)
	if err != nil {
		return false, err
	}
	printing := false
	for _, ln := range reply {
		if strings.HasPrefix(ln, "SD printing byte") {
			printing = true
		}
	}

	if printing {
		if _, err := h.exec(ctx, "M25", h.cfg.CommandTimeout); err != nil {
			return false, err
		}
	}
	cmd := fmt.Sprintf("M125 X%.1f Y%.1f Z%.1f", park.X, park.Y, park.ZRaise)
	if _, err := h.exec(ctx, cmd, h.cfg.MotionTimeout); err != nil {
		return printing, err
	}
	h.logger.Info("toolhead parked", log.Bool("print_paused", printing))
	return printing, nil
}

// WaitForOperatorConfirmation shows prompt and blocks in M0 until the
// operator clicks the printer's controller. Only ctx bounds the wait.
func (h *Host) WaitForOperatorConfirmation(ctx context.Context, prompt string) error {
	_, err := h.Exec(ctx, "M0 "+sanitize(prompt), 0)
	return err
}

// Resume resumes a paused SD print.
func (h *Host) Resume(ctx context.Context) error {
	_, err := h.Exec(ctx, "M24", h.cfg.CommandTimeout)
	return err
}

// Status shows msg on the printer display. Failures are only logged.
func (h *Host) Status(ctx context.Context, msg string) {
	if _, err := h.Exec(ctx, "M117 "+sanitize(msg), h.cfg.CommandTimeout); err != nil {
		h.logger.Warn("status message not shown", log.String("msg", msg), log.Err(err))
	}
}

// sanitize keeps a message on one G-code line.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ';' {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
