package domain

import (
	"fmt"
	"sync"
)

// AngleTable maps ports to servo angles for the local variant.
// It is safe for concurrent use; the actuator reads it while the
// configuration surface may replace it.
type AngleTable struct {
	mu     sync.RWMutex
	angles []int
}

// NewAngleTable creates a table holding a copy of angles.
func NewAngleTable(angles []int) *AngleTable {
	t := &AngleTable{}
	t.angles = append([]int(nil), angles...)
	return t
}

// Angle returns the angle configured for port.
func (t *AngleTable) Angle(port Port) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if port < 0 || int(port) >= len(t.angles) {
		return 0, false
	}
	return t.angles[port], true
}

// Set updates a single port angle.
func (t *AngleTable) Set(port Port, angle int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if port < 0 || int(port) >= len(t.angles) {
		return fmt.Errorf("set angle for port %s: %w", port, ErrInvalidPort)
	}
	t.angles[port] = angle
	return nil
}

// Replace swaps in a new set of angles.
func (t *AngleTable) Replace(angles []int) {
	t.mu.Lock()
	t.angles = append([]int(nil), angles...)
	t.mu.Unlock()
}

// Snapshot returns a copy of the current angles.
func (t *AngleTable) Snapshot() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]int(nil), t.angles...)
}

// Len returns the number of ports in the table.
func (t *AngleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.angles)
}
