// Package anglewatcher reloads the local variant's servo angles when the
// config file changes on disk, so calibration edits made in an editor or
// by another filaswitch process take effect without a restart.
package anglewatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/filaswitch/internal/cliconfig"
	"github.com/bft-labs/filaswitch/pkg/filaswitch"
	"github.com/bft-labs/filaswitch/pkg/log"
)

// Config holds configuration options for the angle watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// Plugin watches the config file and replaces the angle table on change.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration

	path     string
	ports    int
	angles   filaswitch.AngleTable
	logger   log.Logger
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// New creates a new angle watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultConfig().DebounceDelay
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "anglewatcher"
}

// Initialize starts watching the config file's directory. It does nothing
// without a config file or outside the local variant.
func (p *Plugin) Initialize(ctx context.Context, cfg filaswitch.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.logger = log.With(p.logger, log.String("plugin", p.Name()))

	if cfg.ConfigPath == "" || cfg.Angles == nil {
		p.logger.Debug("angle watcher disabled: no config file or no servo")
		return nil
	}
	p.path = filepath.Clean(cfg.ConfigPath)
	p.ports = cfg.Ports
	p.angles = cfg.Angles

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("angle watcher: %w", err)
	}
	// The directory is watched so atomic replacements of the file are seen.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		w.Close()
		return fmt.Errorf("angle watcher: watch %s: %w", filepath.Dir(p.path), err)
	}
	p.watcher = w

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	p.logger.Info("watching servo angles", log.String("path", p.path))
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()
	defer p.watcher.Close()

	base := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("angle watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload reads the angles from the file and applies them if they are usable.
func (p *Plugin) reload() {
	angles, err := cliconfig.LoadAngles(p.path)
	if err != nil {
		p.logger.Warn("servo angles not reloaded", log.String("path", p.path), log.Err(err))
		return
	}
	if err := validate(angles, p.ports); err != nil {
		p.logger.Warn("servo angles not reloaded", log.String("path", p.path), log.Err(err))
		return
	}
	if reflect.DeepEqual(angles, p.angles.Snapshot()) {
		return
	}
	p.angles.Replace(angles)
	p.logger.Info("servo angles reloaded", log.Any("angles", angles))
}

func validate(angles []int, ports int) error {
	if len(angles) < ports {
		return fmt.Errorf("%d angles for %d ports", len(angles), ports)
	}
	for i, a := range angles {
		if a < 0 || a > 180 {
			return fmt.Errorf("angle %d for port %d out of range", a, i)
		}
	}
	return nil
}

var _ filaswitch.Plugin = (*Plugin)(nil)
