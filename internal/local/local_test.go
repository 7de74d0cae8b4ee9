package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/pkg/log"
)

type fakeClock struct{ slept time.Duration }

func (c *fakeClock) Now() time.Time        { return time.Unix(0, 0).Add(c.slept) }
func (c *fakeClock) Sleep(d time.Duration) { c.slept += d }

type recordingServo struct {
	ops []string
	err error
}

func (s *recordingServo) MoveTo(angle int) error {
	if s.err != nil {
		return s.err
	}
	s.ops = append(s.ops, fmt.Sprintf("move %d", angle))
	return nil
}

func (s *recordingServo) Detach() error {
	s.ops = append(s.ops, "detach")
	return nil
}

type staticInput bool

func (s staticInput) Read() bool { return bool(s) }

func TestSensor_Query(t *testing.T) {
	if got := NewSensor(staticInput(true)).Query(context.Background()); got != domain.PresencePresent {
		t.Errorf("Query(high) = %v, want Present", got)
	}
	if got := NewSensor(staticInput(false)).Query(context.Background()); got != domain.PresenceAbsent {
		t.Errorf("Query(low) = %v, want Absent", got)
	}
}

func TestActuator_Commit(t *testing.T) {
	servo := &recordingServo{}
	clock := &fakeClock{}
	table := domain.NewAngleTable([]int{10, 60, 120})
	a := NewActuator(servo, table, clock, log.NewNoopLogger(), Config{SettleDelay: 300 * time.Millisecond, FeedAngle: 90})

	if err := a.Commit(context.Background(), 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := strings.Join(servo.ops, ","); got != "move 60,detach" {
		t.Errorf("ops = %s, want move 60,detach", got)
	}
	if clock.slept != 300*time.Millisecond {
		t.Errorf("settle = %v, want 300ms", clock.slept)
	}
}

func TestActuator_CommitUsesLiveAngles(t *testing.T) {
	servo := &recordingServo{}
	table := domain.NewAngleTable([]int{10, 60})
	a := NewActuator(servo, table, &fakeClock{}, log.NewNoopLogger(), DefaultConfig())

	table.Replace([]int{15, 75})
	if err := a.Commit(context.Background(), 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if servo.ops[0] != "move 75" {
		t.Errorf("first op = %s, want move 75", servo.ops[0])
	}
}

func TestActuator_CommitUnknownPort(t *testing.T) {
	servo := &recordingServo{}
	a := NewActuator(servo, domain.NewAngleTable([]int{10}), &fakeClock{}, log.NewNoopLogger(), DefaultConfig())

	if err := a.Commit(context.Background(), 4); !errors.Is(err, domain.ErrInvalidPort) {
		t.Errorf("Commit(4) error = %v, want ErrInvalidPort", err)
	}
	if len(servo.ops) != 0 {
		t.Errorf("servo moved for unknown port: %v", servo.ops)
	}
}

func TestActuator_Nudge(t *testing.T) {
	servo := &recordingServo{}
	clock := &fakeClock{}
	a := NewActuator(servo, domain.NewAngleTable([]int{10, 60}), clock, log.NewNoopLogger(), Config{SettleDelay: 100 * time.Millisecond, FeedAngle: 90})

	if err := a.Nudge(context.Background(), 0); err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	if got := strings.Join(servo.ops, ","); got != "move 90,move 10,detach" {
		t.Errorf("ops = %s, want move 90,move 10,detach", got)
	}
	if clock.slept != 200*time.Millisecond {
		t.Errorf("settle = %v, want 200ms", clock.slept)
	}
}

func TestActuator_ServoError(t *testing.T) {
	servo := &recordingServo{err: errors.New("modbus: timeout")}
	a := NewActuator(servo, domain.NewAngleTable([]int{10}), &fakeClock{}, log.NewNoopLogger(), DefaultConfig())

	if err := a.Commit(context.Background(), 0); err == nil {
		t.Error("Commit should surface servo transport errors")
	}
}
