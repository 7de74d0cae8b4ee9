// Package link implements the command/response transaction primitive used
// to talk to the switching peripheral.
//
// A transaction is one ASCII command line answered by a trailing "ok" or
// "no". The link never retries; callers decide what a timeout means.
// Waiting is cooperative: Pump is one polling step and AwaitResponse
// alternates Pump with the clock's idle step.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

const (
	ackSuffix  = "ok\n"
	denySuffix = "no\n"

	// maxReadsPerPump bounds how long a single Pump may keep draining a chatty channel.
	maxReadsPerPump = 4
)

// Config holds link timing.
type Config struct {
	// DefaultTimeout is the response budget when callers pass zero.
	DefaultTimeout time.Duration

	// PollInterval is the idle step between pumps while awaiting a response.
	PollInterval time.Duration
}

// DefaultConfig returns the link timing used by the firmware.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 1000 * time.Millisecond,
		PollInterval:   2 * time.Millisecond,
	}
}

// Link owns the single outstanding transaction with the peripheral.
// It is not safe for concurrent use; the port controller serializes access.
type Link struct {
	ch     ports.SerialChannel
	clock  ports.Clock
	logger log.Logger
	cfg    Config

	rx    rxBuffer
	chunk [RxBufferSize]byte

	// state is the last outcome; before the first command nothing is outstanding.
	state    domain.ResponseState
	command  string
	issuedAt time.Time
	timeout  time.Duration
	overruns int
}

// New creates a link over ch.
func New(ch ports.SerialChannel, clock ports.Clock, logger log.Logger, cfg Config) *Link {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Link{
		ch:     ch,
		clock:  clock,
		logger: log.With(logger, log.String("component", "link")),
		cfg:    cfg,
		state:  domain.ResponseAcknowledged,
	}
}

// State returns the state of the current or last transaction.
func (l *Link) State() domain.ResponseState { return l.state }

// Pending reports whether a transaction is outstanding.
func (l *Link) Pending() bool { return l.state == domain.ResponsePending }

// Overruns returns how many times the receive buffer overflowed.
func (l *Link) Overruns() int { return l.overruns }

// Send starts a transaction: it discards unread input, marks the
// transaction pending and writes cmd followed by a newline.
func (l *Link) Send(cmd string) error {
	if l.Pending() {
		return fmt.Errorf("send %q while %q pending: %w", cmd, l.command, domain.ErrLinkBusy)
	}

	if err := l.ch.ResetInputBuffer(); err != nil {
		l.logger.Warn("discard unread input failed", log.Err(err))
	}
	l.rx.reset()

	l.state = domain.ResponsePending
	l.command = cmd
	l.issuedAt = l.clock.Now()
	l.timeout = l.cfg.DefaultTimeout

	if _, err := io.WriteString(l.ch, cmd+"\n"); err != nil {
		l.resolve(domain.ResponseError)
		return fmt.Errorf("write %q: %v: %w", cmd, err, domain.ErrLinkFault)
	}
	l.logger.Debug("command sent", log.String("command", cmd))
	return nil
}

// BeginAwait records the issue time and timeout budget for the pending transaction.
func (l *Link) BeginAwait(timeout time.Duration) {
	if timeout <= 0 {
		timeout = l.cfg.DefaultTimeout
	}
	l.issuedAt = l.clock.Now()
	l.timeout = timeout
}

// Pump is one cooperative polling step. It drains available bytes,
// classifies the response and enforces the timeout. Once the transaction
// is resolved further pumps change nothing until the next Send.
func (l *Link) Pump() domain.ResponseState {
	if !l.Pending() {
		return l.state
	}

	for i := 0; i < maxReadsPerPump; i++ {
		n, err := l.ch.Read(l.chunk[:])
		for _, b := range l.chunk[:n] {
			if l.receive(b) {
				return l.state
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			l.logger.Error("read failed", log.String("command", l.command), log.Err(err))
			l.resolve(domain.ResponseError)
			return l.state
		}
		if n < len(l.chunk) {
			break
		}
	}

	if elapsed := l.clock.Now().Sub(l.issuedAt); elapsed > l.timeout {
		l.logger.Warn("response timed out",
			log.String("command", l.command),
			log.Duration("budget", l.timeout),
			log.Duration("elapsed", elapsed),
		)
		l.resolve(domain.ResponseTimedOut)
	}
	return l.state
}

// receive appends one byte and reports whether it resolved the transaction.
func (l *Link) receive(b byte) bool {
	if l.rx.full() {
		l.overruns++
		l.logger.Warn("receive buffer discarded",
			log.String("command", l.command),
			log.String("discarded", string(l.rx.bytes())),
			log.Err(domain.ErrBufferOverrun),
		)
		l.rx.reset()
	}
	l.rx.push(b)

	switch {
	case l.rx.endsWith(ackSuffix):
		l.resolve(domain.ResponseAcknowledged)
	case l.rx.endsWith(denySuffix):
		l.resolve(domain.ResponseDenied)
	default:
		return false
	}
	return true
}

func (l *Link) resolve(st domain.ResponseState) {
	l.state = st
	l.rx.reset()
	l.logger.Debug("transaction resolved",
		log.String("command", l.command),
		log.Stringer("state", st),
	)
}

// AwaitResponse waits for the pending transaction to resolve, pumping
// between idle steps. It returns the final state. A cancelled context
// resolves the transaction as an error.
func (l *Link) AwaitResponse(ctx context.Context, timeout time.Duration) domain.ResponseState {
	if !l.Pending() {
		return l.state
	}
	l.BeginAwait(timeout)
	for {
		if st := l.Pump(); st != domain.ResponsePending {
			return st
		}
		if ctx.Err() != nil {
			l.logger.Warn("await abandoned", log.String("command", l.command), log.Err(ctx.Err()))
			l.resolve(domain.ResponseError)
			return l.state
		}
		l.clock.Sleep(l.cfg.PollInterval)
	}
}

// Transact sends cmd and awaits its response. The error is nil only for
// an acknowledged command.
func (l *Link) Transact(ctx context.Context, cmd string, timeout time.Duration) (domain.ResponseState, error) {
	if err := l.Send(cmd); err != nil {
		if l.Pending() {
			return domain.ResponsePending, err
		}
		return l.state, err
	}
	st := l.AwaitResponse(ctx, timeout)
	if err := st.Err(); err != nil {
		return st, fmt.Errorf("%s: %w", cmd, err)
	}
	return st, nil
}
