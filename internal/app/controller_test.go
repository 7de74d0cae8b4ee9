package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/filaswitch/internal/domain"
	"github.com/bft-labs/filaswitch/internal/ports"
	"github.com/bft-labs/filaswitch/pkg/log"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// rig simulates a printer with a filament path. Retracting clears the
// sensor; feeding reaches it only while feedWorks is set.
type rig struct {
	mu        sync.Mutex
	clock     *fakeClock
	loaded    bool
	feedWorks bool
	sensorErr bool

	motion   []string
	commits  []domain.Port
	nudges   []domain.Port
	status   []string
	pauses   int
	confirms int
	resumes  int

	commitErr  error
	temp       float64
	tempErr    error
	onConfirm  func(r *rig)
	confirmErr error
	block      chan struct{}
}

func newRig() *rig {
	return &rig{clock: &fakeClock{now: time.Unix(0, 0)}, temp: 215}
}

func (r *rig) MoveExtruderRelative(ctx context.Context, deltaMM, feedrate float64) error {
	r.mu.Lock()
	r.motion = append(r.motion, fmt.Sprintf("E%.0f", deltaMM))
	if deltaMM < 0 {
		r.loaded = false
	} else if r.feedWorks {
		r.loaded = true
	}
	r.mu.Unlock()
	r.clock.Sleep(time.Duration(math.Abs(deltaMM) / feedrate * float64(time.Minute)))
	return nil
}

func (r *rig) record(op string) error {
	r.mu.Lock()
	r.motion = append(r.motion, op)
	r.mu.Unlock()
	return nil
}

func (r *rig) Synchronize(ctx context.Context) error          { return r.record("sync") }
func (r *rig) EnableExtruderDrive(ctx context.Context) error  { return r.record("enable") }
func (r *rig) DisableExtruderDrive(ctx context.Context) error { return r.record("disable") }

func (r *rig) Query(ctx context.Context) domain.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sensorErr {
		return domain.PresenceSensorError
	}
	if r.loaded {
		return domain.PresencePresent
	}
	return domain.PresenceAbsent
}

func (r *rig) Commit(ctx context.Context, port domain.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, port)
	return r.commitErr
}

func (r *rig) Nudge(ctx context.Context, port domain.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nudges = append(r.nudges, port)
	return nil
}

func (r *rig) Pause(ctx context.Context, park ports.ParkPosition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
	return true, nil
}

func (r *rig) WaitForOperatorConfirmation(ctx context.Context, prompt string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirms++
	if r.confirmErr != nil {
		return r.confirmErr
	}
	if r.onConfirm != nil {
		r.onConfirm(r)
	}
	return nil
}

func (r *rig) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++
	return nil
}

func (r *rig) HotendTemperature(ctx context.Context) (float64, error) {
	return r.temp, r.tempErr
}

func (r *rig) Status(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, msg)
}

func (r *rig) controller(emitter PhaseEmitter) *Controller {
	return NewController(DefaultConfig(), Deps{
		Variant:      Variant{Name: "test", Sensor: r, Actuator: r, GripDwell: 500 * time.Millisecond},
		Motion:       r,
		PrintControl: r,
		Thermometer:  r,
		Status:       r,
		Clock:        r.clock,
		Logger:       log.NewNoopLogger(),
		Emitter:      emitter,
	})
}

func TestSelectPort_FirstSelectionCommitsDirectly(t *testing.T) {
	r := newRig()
	c := r.controller(nil)

	if err := c.SelectPort(context.Background(), 1); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	snap := c.Snapshot()
	if snap.Current != 1 || snap.Pending != domain.NoPort || snap.Phase != domain.PhaseIdle {
		t.Errorf("snapshot = %+v, want current 1, pending none, Idle", snap)
	}
	if len(r.commits) != 1 || r.commits[0] != 1 {
		t.Errorf("commits = %v, want [1]", r.commits)
	}
	if len(r.motion) != 0 {
		t.Errorf("motion = %v, want none", r.motion)
	}
	if len(r.status) != 1 || r.status[0] != "Port: B" {
		t.Errorf("status = %v, want [Port: B]", r.status)
	}
}

func TestSelectPort_FirstSelectionWithoutAck(t *testing.T) {
	r := newRig()
	r.commitErr = domain.ErrCommandTimeout
	c := r.controller(nil)

	if err := c.SelectPort(context.Background(), 2); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if c.Current() != 2 {
		t.Errorf("current = %v, want 2", c.Current())
	}
	if len(r.status) != 0 {
		t.Errorf("status = %v, want none without acknowledgement", r.status)
	}
}

func TestSelectPort_FirstSelectionRejectsIllegalPhase(t *testing.T) {
	r := newRig()
	c := r.controller(nil)
	if err := c.phase.TransitionTo(domain.PhaseSwitching, "test"); err != nil {
		t.Fatal(err)
	}
	if err := c.phase.TransitionTo(domain.PhaseFeeding, "test"); err != nil {
		t.Fatal(err)
	}

	if err := c.SelectPort(context.Background(), 1); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("SelectPort error = %v, want ErrInvalidTransition", err)
	}
	if len(r.commits) != 0 {
		t.Errorf("commits = %v, want none", r.commits)
	}
	snap := c.Snapshot()
	if snap.Current != domain.NoPort || snap.Pending != domain.NoPort || snap.Phase != domain.PhaseIdle {
		t.Errorf("snapshot = %+v, want no ports and Idle", snap)
	}
}

func TestSelectPort_SamePortIsNoop(t *testing.T) {
	r := newRig()
	c := r.controller(nil)
	c.current = 3

	if err := c.SelectPort(context.Background(), 3); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if len(r.commits) != 0 || len(r.motion) != 0 || len(r.status) != 0 {
		t.Errorf("no-op issued commits=%v motion=%v status=%v", r.commits, r.motion, r.status)
	}
	if c.Current() != 3 {
		t.Errorf("current = %v, want 3", c.Current())
	}
}

func TestSelectPort_InvalidPort(t *testing.T) {
	r := newRig()
	c := r.controller(nil)

	for _, p := range []domain.Port{domain.NoPort, 4, 99} {
		if err := c.SelectPort(context.Background(), p); !errors.Is(err, domain.ErrInvalidPort) {
			t.Errorf("SelectPort(%v) error = %v, want ErrInvalidPort", p, err)
		}
	}
}

func TestSelectPort_TooCold(t *testing.T) {
	tests := []struct {
		name    string
		temp    float64
		tempErr error
	}{
		{"below threshold", 150, nil},
		{"unreadable", 0, errors.New("no reply to M105")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			r.temp, r.tempErr = tt.temp, tt.tempErr
			c := r.controller(nil)
			c.current = 1

			err := c.SelectPort(context.Background(), 2)
			if !errors.Is(err, domain.ErrTooCold) {
				t.Fatalf("SelectPort error = %v, want ErrTooCold", err)
			}
			if c.Current() != 1 || c.Pending() != domain.NoPort {
				t.Errorf("current/pending = %v/%v, want 1/none", c.Current(), c.Pending())
			}
			if len(r.commits) != 0 || len(r.motion) != 0 {
				t.Errorf("too-cold switch issued commits=%v motion=%v", r.commits, r.motion)
			}
			if len(r.status) != 1 {
				t.Errorf("status = %v, want one notification", r.status)
			}
		})
	}
}

func TestSelectPort_FeedSucceeds(t *testing.T) {
	r := newRig()
	r.loaded, r.feedWorks = true, true
	emitter := &mockEmitter{}
	c := r.controller(emitter)
	c.current = 0

	if err := c.SelectPort(context.Background(), 2); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if c.Current() != 2 || c.Pending() != domain.NoPort {
		t.Errorf("current/pending = %v/%v, want 2/none", c.Current(), c.Pending())
	}

	want := []domain.Phase{domain.PhaseUnloading, domain.PhaseSwitching, domain.PhaseFeeding, domain.PhaseIdle}
	assertPhases(t, emitter.Phases(), want)
	if len(r.nudges) != 0 || r.pauses != 0 {
		t.Errorf("nudges=%v pauses=%d, want none", r.nudges, r.pauses)
	}
}

func TestSelectPort_CommitFailureStillFeeds(t *testing.T) {
	r := newRig()
	r.loaded, r.feedWorks = true, true
	r.commitErr = domain.ErrCommandDenied
	c := r.controller(nil)
	c.current = 0

	if err := c.SelectPort(context.Background(), 1); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if c.Current() != 1 {
		t.Errorf("current = %v, want 1", c.Current())
	}
}

func TestSelectPort_EscalatesToOperator(t *testing.T) {
	r := newRig()
	r.loaded = true
	r.onConfirm = func(r *rig) { r.feedWorks = true }
	emitter := &mockEmitter{}
	c := r.controller(emitter)
	c.current = 1

	if err := c.SelectPort(context.Background(), 2); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}

	if c.Current() != 2 || c.Pending() != domain.NoPort {
		t.Errorf("current/pending = %v/%v, want 2/none", c.Current(), c.Pending())
	}
	want := []domain.Phase{
		domain.PhaseUnloading,
		domain.PhaseSwitching,
		domain.PhaseFeeding,
		domain.PhaseFeedRetry,
		domain.PhaseAwaitingOperator,
		domain.PhaseFeeding,
		domain.PhaseIdle,
	}
	assertPhases(t, emitter.Phases(), want)

	if len(r.commits) != 1 || r.commits[0] != 2 {
		t.Errorf("commits = %v, want [2]", r.commits)
	}
	if len(r.nudges) != 1 || r.nudges[0] != 2 {
		t.Errorf("nudges = %v, want [2]", r.nudges)
	}
	if r.pauses != 1 || r.confirms != 1 || r.resumes != 1 {
		t.Errorf("pauses/confirms/resumes = %d/%d/%d, want 1/1/1", r.pauses, r.confirms, r.resumes)
	}
	if last := r.status[len(r.status)-1]; last != "Port: C" {
		t.Errorf("last status = %q, want Port: C", last)
	}
}

func TestSelectPort_OperatorLoopRepeats(t *testing.T) {
	r := newRig()
	r.loaded = true
	r.onConfirm = func(r *rig) {
		if r.confirms == 3 {
			r.feedWorks = true
		}
	}
	c := r.controller(nil)
	c.current = 0

	if err := c.SelectPort(context.Background(), 1); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if r.confirms != 3 {
		t.Errorf("confirms = %d, want 3", r.confirms)
	}
	if c.Current() != 1 {
		t.Errorf("current = %v, want 1", c.Current())
	}
}

func TestSelectPort_UnloadSensorFaultEscalates(t *testing.T) {
	r := newRig()
	r.loaded, r.feedWorks = true, true
	r.sensorErr = true
	r.onConfirm = func(r *rig) { r.sensorErr = false }
	emitter := &mockEmitter{}
	c := r.controller(emitter)
	c.current = 0

	if err := c.SelectPort(context.Background(), 1); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	want := []domain.Phase{
		domain.PhaseUnloading,
		domain.PhaseAwaitingOperator,
		domain.PhaseUnloading,
		domain.PhaseSwitching,
		domain.PhaseFeeding,
		domain.PhaseIdle,
	}
	assertPhases(t, emitter.Phases(), want)
	if c.Current() != 1 {
		t.Errorf("current = %v, want 1", c.Current())
	}
}

func TestSelectPort_ConcurrentSelectionRejected(t *testing.T) {
	r := newRig()
	r.loaded = true
	r.block = make(chan struct{})
	r.onConfirm = func(r *rig) { r.feedWorks = true }

	waiting := make(chan struct{})
	var once sync.Once
	emitter := &mockEmitter{notify: func(p domain.Phase) {
		if p == domain.PhaseAwaitingOperator {
			once.Do(func() { close(waiting) })
		}
	}}
	c := r.controller(emitter)
	c.current = 0

	done := make(chan error, 1)
	go func() { done <- c.SelectPort(context.Background(), 1) }()

	<-waiting
	if err := c.SelectPort(context.Background(), 2); !errors.Is(err, domain.ErrSwitchInProgress) {
		t.Errorf("concurrent SelectPort error = %v, want ErrSwitchInProgress", err)
	}
	if snap := c.Snapshot(); snap.Pending != 1 || snap.Phase != domain.PhaseAwaitingOperator {
		t.Errorf("snapshot during switch = %+v, want pending 1, AwaitingOperator", snap)
	}

	close(r.block)
	if err := <-done; err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if c.Current() != 1 {
		t.Errorf("current = %v, want 1", c.Current())
	}
}

func TestSelectPort_CancelledWhileWaitingForOperator(t *testing.T) {
	r := newRig()
	r.loaded = true
	r.confirmErr = context.Canceled
	c := r.controller(nil)
	c.current = 0

	err := c.SelectPort(context.Background(), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SelectPort error = %v, want context.Canceled", err)
	}
	snap := c.Snapshot()
	if snap.Current != 0 || snap.Pending != domain.NoPort || snap.Phase != domain.PhaseIdle {
		t.Errorf("snapshot = %+v, want current 0, pending none, Idle", snap)
	}
}

func assertPhases(t *testing.T, got, want []domain.Phase) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}
}
