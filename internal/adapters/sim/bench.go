// Package sim is an in-process stand-in for the switching hardware and the
// printer, used by --simulate and by end-to-end tests.
package sim

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
)

// GapMM is how far upstream of the sensor a freshly engaged filament waits.
const GapMM = 8

// Bench models one filament path. Tip is the filament tip position
// relative to the sensor; positive means the sensor sees filament.
type Bench struct {
	mu sync.Mutex

	clock   ports.Clock
	count   int
	angles  *domain.AngleTable
	engaged domain.Port
	tip     float64
	jammed  map[domain.Port]bool
	drive   bool

	Temperature float64
	Printing    bool

	commands []string
	messages []string
	rx       bytes.Buffer
	partial  []byte
}

// NewBench creates a bench with count ports and no port engaged. angles
// maps servo angles back to ports for the local variant and may be nil.
func NewBench(count int, angles *domain.AngleTable, clock ports.Clock) *Bench {
	return &Bench{
		clock:       clock,
		count:       count,
		angles:      angles,
		engaged:     domain.NoPort,
		jammed:      make(map[domain.Port]bool),
		Temperature: 215,
	}
}

// Load engages port with filament already at the sensor.
func (b *Bench) Load(port domain.Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engaged = port
	b.tip = 20
}

// Jam makes feeding from port stall before the sensor until the operator
// confirms.
func (b *Bench) Jam(port domain.Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jammed[port] = true
}

// Engaged returns the port the mechanism is set to.
func (b *Bench) Engaged() domain.Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engaged
}

// Commands returns the peripheral commands received so far.
func (b *Bench) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.commands...)
}

// Messages returns the status messages shown so far.
func (b *Bench) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.messages...)
}

func (b *Bench) engage(port domain.Port) {
	if port != b.engaged {
		b.tip = -GapMM
	}
	b.engaged = port
}

// Write accepts peripheral command bytes and queues the reply.
func (b *Bench) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range p {
		if c != '\n' && c != '\r' {
			b.partial = append(b.partial, c)
			continue
		}
		if len(b.partial) == 0 {
			continue
		}
		cmd := string(b.partial)
		b.partial = b.partial[:0]
		b.commands = append(b.commands, cmd)
		if b.handle(cmd) {
			b.rx.WriteString("ok\n")
		} else {
			b.rx.WriteString("no\n")
		}
	}
	return len(p), nil
}

func (b *Bench) handle(cmd string) bool {
	switch {
	case cmd == "M412":
		return b.tip > 0
	case cmd == "M709":
		return true
	case strings.HasPrefix(cmd, "M240"):
		return true
	case strings.HasPrefix(cmd, "T"):
		n, err := strconv.Atoi(cmd[1:])
		if err != nil || !domain.Port(n).Valid(b.count) {
			return false
		}
		b.engage(domain.Port(n))
		return true
	case strings.HasPrefix(cmd, "C"):
		n, err := strconv.Atoi(cmd[1:])
		if err != nil || b.engaged == domain.NoPort {
			return false
		}
		b.advance(float64(n))
		return true
	}
	return false
}

// advance moves the tip forward unless the engaged port is jammed short
// of the sensor.
func (b *Bench) advance(mm float64) {
	b.tip += mm
	if b.jammed[b.engaged] && b.tip > -1 {
		b.tip = -1
	}
}

// Read returns queued reply bytes. An empty queue reads as a timeout.
func (b *Bench) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rx.Len() == 0 {
		return 0, nil
	}
	return b.rx.Read(p)
}

// ResetInputBuffer drops unread reply bytes.
func (b *Bench) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rx.Reset()
	return nil
}

// MoveExtruderRelative moves the filament tip and takes the move's time.
func (b *Bench) MoveExtruderRelative(ctx context.Context, deltaMM, feedrateMMPerMin float64) error {
	b.mu.Lock()
	if b.engaged != domain.NoPort {
		if deltaMM > 0 {
			b.advance(deltaMM)
		} else {
			b.tip += deltaMM
		}
	}
	b.mu.Unlock()
	if feedrateMMPerMin > 0 {
		b.clock.Sleep(time.Duration(math.Abs(deltaMM) / feedrateMMPerMin * float64(time.Minute)))
	}
	return nil
}

// Synchronize returns at once; moves complete as they are issued.
func (b *Bench) Synchronize(ctx context.Context) error { return nil }

// EnableExtruderDrive energizes the simulated extruder.
func (b *Bench) EnableExtruderDrive(ctx context.Context) error {
	b.mu.Lock()
	b.drive = true
	b.mu.Unlock()
	return nil
}

// DisableExtruderDrive releases the simulated extruder.
func (b *Bench) DisableExtruderDrive(ctx context.Context) error {
	b.mu.Lock()
	b.drive = false
	b.mu.Unlock()
	return nil
}

// HotendTemperature returns Temperature.
func (b *Bench) HotendTemperature(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Temperature, nil
}

// Pause reports whether a print was running.
func (b *Bench) Pause(ctx context.Context, park ports.ParkPosition) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Printing, nil
}

// WaitForOperatorConfirmation plays the operator clearing the jam on the
// engaged port.
func (b *Bench) WaitForOperatorConfirmation(ctx context.Context, prompt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jammed, b.engaged)
	return ctx.Err()
}

// Resume does nothing.
func (b *Bench) Resume(ctx context.Context) error { return nil }

// Status records msg.
func (b *Bench) Status(ctx context.Context, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

// MoveTo engages the port configured for angle.
func (b *Bench) MoveTo(angle int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.angles == nil {
		return nil
	}
	for i, a := range b.angles.Snapshot() {
		if a == angle {
			b.engage(domain.Port(i))
			return nil
		}
	}
	return nil
}

// Detach does nothing.
func (b *Bench) Detach() error { return nil }

// Present reads the simulated presence switch.
func (b *Bench) Present() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tip > 0
}

// Input adapts the bench to ports.DigitalInput.
type Input struct{ B *Bench }

// Read reports filament at the sensor.
func (i Input) Read() bool { return i.B.Present() }
