package filaswitch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/filaswitch/internal/cliconfig"
	"github.com/bft-labs/filaswitch/internal/command"
	"github.com/bft-labs/filaswitch/internal/domain"
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

type recordingHandler struct {
	mu     sync.Mutex
	phases []Phase
}

func (h *recordingHandler) OnPhaseChange(e PhaseChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, e.Current)
}

func (h *recordingHandler) saw(p Phase) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.phases {
		if got == p {
			return true
		}
	}
	return false
}

// trackingPlugin records the order of Initialize and Shutdown calls.
type trackingPlugin struct {
	name    string
	order   *[]string
	initErr error
	cfg     PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	if p.initErr != nil {
		return p.initErr
	}
	p.cfg = cfg
	*p.order = append(*p.order, "init "+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	*p.order = append(*p.order, "shutdown "+p.name)
	return nil
}

func simConfig(variant string) Config {
	cfg := DefaultConfig()
	cfg.Simulate = true
	cfg.Variant = variant
	return cfg
}

func startSwitch(t *testing.T, cfg Config, opts ...Option) *Switch {
	t.Helper()
	opts = append([]Option{WithClock(&fakeClock{now: time.Unix(0, 0)})}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func exec(t *testing.T, s *Switch, line string) string {
	t.Helper()
	reply, err := s.Execute(context.Background(), line)
	if err != nil {
		t.Fatalf("Execute(%q): %v", line, err)
	}
	return reply
}

func TestSwitch_ProtocolToolChange(t *testing.T) {
	h := &recordingHandler{}
	s := startSwitch(t, simConfig(cliconfig.VariantProtocol), WithEventHandler(h))

	if got := exec(t, s, "T0"); got != "ok" {
		t.Errorf("T0 = %q, want ok", got)
	}
	if got := exec(t, s, "T2"); got != "ok" {
		t.Errorf("T2 = %q, want ok", got)
	}

	snap := s.Snapshot()
	if snap.Current != 2 || snap.Pending != NoPort || snap.Phase != domain.PhaseIdle {
		t.Errorf("snapshot = %+v, want current 2, no pending, idle", snap)
	}
	if got := exec(t, s, "M412"); got != "Present" {
		t.Errorf("M412 = %q, want Present", got)
	}
	if got := exec(t, s, "status"); got != "current=2 pending=none phase=Idle" {
		t.Errorf("status = %q", got)
	}
	if got := exec(t, s, "M709"); got != "ok" {
		t.Errorf("M709 = %q, want ok", got)
	}
	if !h.saw(domain.PhaseFeeding) {
		t.Errorf("phases %v never reached Feeding", h.phases)
	}

	msgs := s.bench.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1] != "Port: C" {
		t.Errorf("messages = %q, want last Port: C", msgs)
	}

	if _, err := s.Execute(context.Background(), "M281"); !errors.Is(err, command.ErrUnsupported) {
		t.Errorf("M281 on protocol variant error = %v, want ErrUnsupported", err)
	}
}

func TestSwitch_LocalAngleEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := startSwitch(t, simConfig(cliconfig.VariantLocal), WithConfigPath(path))

	if got := exec(t, s, "T1"); got != "ok" {
		t.Errorf("T1 = %q, want ok", got)
	}
	if s.bench.Engaged() != 1 {
		t.Errorf("engaged = %v, want 1", s.bench.Engaged())
	}

	want := "M281 P0 A30 B80 C110 D150"
	if got := exec(t, s, "M281 B80"); got != want {
		t.Errorf("M281 B80 = %q, want %q", got, want)
	}
	if got := exec(t, s, "M281"); got != want {
		t.Errorf("M281 = %q, want %q", got, want)
	}

	saved, err := cliconfig.LoadAngles(path)
	if err != nil {
		t.Fatalf("LoadAngles: %v", err)
	}
	if !reflect.DeepEqual(saved, []int{30, 80, 110, 150}) {
		t.Errorf("saved angles = %v", saved)
	}

	if _, err := s.Execute(context.Background(), "M709"); !errors.Is(err, command.ErrUnsupported) {
		t.Errorf("M709 on local variant error = %v, want ErrUnsupported", err)
	}
}

func TestSwitch_ConsoleStatus(t *testing.T) {
	var out bytes.Buffer
	s := startSwitch(t, simConfig(cliconfig.VariantProtocol), WithConsole(make(chan string), &out))

	exec(t, s, "T3")
	if !strings.Contains(out.String(), "// Port: D") {
		t.Errorf("console output = %q, want Port: D", out.String())
	}
}

func TestSwitch_Lifecycle(t *testing.T) {
	s, err := New(simConfig(cliconfig.VariantProtocol), WithClock(&fakeClock{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Execute(context.Background(), "status"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Execute before Start error = %v, want ErrNotRunning", err)
	}
	if got := s.Snapshot(); got.Current != NoPort || got.Phase != domain.PhaseIdle {
		t.Errorf("snapshot before Start = %+v", got)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop error = %v, want ErrNotRunning", err)
	}
	if err := s.Select(context.Background(), 1); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Select after Stop error = %v, want ErrNotRunning", err)
	}
}

func TestSwitch_StopCancelsToolChange(t *testing.T) {
	cfg := simConfig(cliconfig.VariantProtocol)
	cfg.Confirm = cliconfig.ConfirmConsole
	s, err := New(cfg, WithClock(&fakeClock{now: time.Unix(0, 0)}), WithConsole(make(chan string), io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Select(context.Background(), 0); err != nil {
		t.Fatalf("Select(0): %v", err)
	}
	s.bench.Jam(2)

	result := make(chan error, 1)
	go func() { result <- s.Select(context.Background(), 2) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Phase != domain.PhaseAwaitingOperator {
		if time.Now().After(deadline) {
			t.Fatalf("phase = %v, never reached AwaitingOperator", s.Snapshot().Phase)
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Select(2) error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Select(2) still running after Stop")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Stop()
	if err := s.Select(context.Background(), 1); err != nil {
		t.Errorf("Select(1) after restart: %v", err)
	}
	if got := s.Snapshot().Current; got != 1 {
		t.Errorf("current after restart = %v, want 1", got)
	}
}

func TestSwitch_PluginOrder(t *testing.T) {
	var order []string
	a := &trackingPlugin{name: "a", order: &order}
	b := &trackingPlugin{name: "b", order: &order}

	cfg := simConfig(cliconfig.VariantLocal)
	s, err := New(cfg, WithClock(&fakeClock{}), WithPlugin(a), WithPlugin(b), WithConfigPath("/tmp/x.toml"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"init a", "init b", "shutdown b", "shutdown a"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if a.cfg.ConfigPath != "/tmp/x.toml" || a.cfg.Ports != cfg.Ports || a.cfg.Angles == nil {
		t.Errorf("plugin config = %+v", a.cfg)
	}
}

func TestSwitch_PluginInitFailure(t *testing.T) {
	var order []string
	a := &trackingPlugin{name: "a", order: &order}
	b := &trackingPlugin{name: "b", order: &order, initErr: errors.New("boom")}

	s, err := New(simConfig(cliconfig.VariantProtocol), WithClock(&fakeClock{}), WithPlugin(a), WithPlugin(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when a plugin fails to initialize")
	}

	want := []string{"init a", "shutdown a"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if _, err := s.Execute(context.Background(), "status"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Execute after failed Start error = %v, want ErrNotRunning", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing printer", func(c *Config) { c.Simulate = false }},
		{"bad variant", func(c *Config) { c.Variant = "remote" }},
		{"console confirm without console", func(c *Config) { c.Confirm = cliconfig.ConfirmConsole }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := simConfig(cliconfig.VariantProtocol)
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("New error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
