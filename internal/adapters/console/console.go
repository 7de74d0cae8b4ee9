// Package console connects the operator's terminal to the controller:
// request lines in, confirmations in, status lines out.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Lines reads trimmed, non-empty lines from r until it fails. The channel
// is closed at EOF. Comments after ';' are dropped, as in G-code.
func Lines(r io.Reader, logger log.Logger) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scan := bufio.NewScanner(r)
		for scan.Scan() {
			ln := scan.Text()
			if i := strings.IndexByte(ln, ';'); i >= 0 {
				ln = ln[:i]
			}
			ln = strings.TrimSpace(ln)
			if ln == "" {
				continue
			}
			out <- ln
		}
		if err := scan.Err(); err != nil {
			logger.Error("console read failed", log.Err(err))
		}
	}()
	return out
}

// Confirmer waits for the operator to press enter on the console. It
// shares the request line channel; requests are not read while a switch
// runs, so the next line belongs to the confirmation.
type Confirmer struct {
	in  <-chan string
	out io.Writer
}

// NewConfirmer creates a confirmer reading from in and prompting on out.
func NewConfirmer(in <-chan string, out io.Writer) *Confirmer {
	return &Confirmer{in: in, out: out}
}

// WaitForOperatorConfirmation prints prompt and waits for any line.
func (c *Confirmer) WaitForOperatorConfirmation(ctx context.Context, prompt string) error {
	fmt.Fprintf(c.out, "%s (press enter)\n", prompt)
	select {
	case _, ok := <-c.in:
		if !ok {
			return io.ErrUnexpectedEOF
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsolePrintControl pauses and resumes through the printer but takes
// confirmation from the console.
type ConsolePrintControl struct {
	ports.PrintControl
	confirm *Confirmer
}

// WithConfirmer returns pc with operator confirmation taken from c.
func WithConfirmer(pc ports.PrintControl, c *Confirmer) *ConsolePrintControl {
	return &ConsolePrintControl{PrintControl: pc, confirm: c}
}

// WaitForOperatorConfirmation waits on the console.
func (p *ConsolePrintControl) WaitForOperatorConfirmation(ctx context.Context, prompt string) error {
	return p.confirm.WaitForOperatorConfirmation(ctx, prompt)
}

// Status writes status messages as lines on w.
type Status struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStatus creates a status writer.
func NewStatus(w io.Writer) *Status {
	return &Status{w: w}
}

// Status writes msg.
func (s *Status) Status(ctx context.Context, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "// %s\n", msg)
}

// Tee forwards status messages to every reporter.
type Tee []ports.StatusReporter

// Status forwards msg.
func (t Tee) Status(ctx context.Context, msg string) {
	for _, r := range t {
		r.Status(ctx, msg)
	}
}
