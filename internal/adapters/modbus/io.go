// Package modbus reaches the local variant's servo and filament switch
// through a Modbus TCP I/O module.
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/bft-labs/filaswitch/pkg/log"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Config describes where the servo and presence input live on the module.
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	// PresenceInput is the discrete input wired to the filament switch.
	PresenceInput uint16

	// AngleRegister is the holding register taking the servo angle in degrees.
	AngleRegister uint16

	// EnableCoil powers the servo output. Clearing it detaches the servo.
	EnableCoil uint16
}

// client is the subset of modbus.Client used here.
type client interface {
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// IO is a single TCP connection to the I/O module. Requests are serialized.
type IO struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  client
	cfg     Config
	logger  log.Logger
}

// Dial connects to the module.
func Dial(cfg Config, logger log.Logger) (*IO, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus %s: %w", cfg.Endpoint, err)
	}

	return &IO{
		handler: h,
		client:  modbus.NewClient(h),
		cfg:     cfg,
		logger:  log.With(logger, log.String("component", "modbus"), log.String("endpoint", cfg.Endpoint)),
	}, nil
}

// Close closes the connection.
func (m *IO) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

// Read returns the presence input. A failed read is logged and reported
// as no filament.
func (m *IO) Read() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.client.ReadDiscreteInputs(m.cfg.PresenceInput, 1)
	if err != nil {
		m.logger.Error("presence input read failed", log.Int("input", int(m.cfg.PresenceInput)), log.Err(err))
		return false
	}
	if len(res) < 1 {
		m.logger.Error("presence input read empty", log.Int("input", int(m.cfg.PresenceInput)))
		return false
	}
	return res[0]&1 != 0
}

// MoveTo powers the servo and commands angle.
func (m *IO) MoveTo(angle int) error {
	if angle < 0 || angle > 180 {
		return fmt.Errorf("modbus: servo angle %d out of range", angle)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.client.WriteSingleRegister(m.cfg.AngleRegister, uint16(angle)); err != nil {
		return fmt.Errorf("modbus: write angle: %w", err)
	}
	if _, err := m.client.WriteSingleCoil(m.cfg.EnableCoil, coilOn); err != nil {
		return fmt.Errorf("modbus: enable servo: %w", err)
	}
	return nil
}

// Detach removes servo power so it no longer holds position.
func (m *IO) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.client.WriteSingleCoil(m.cfg.EnableCoil, coilOff); err != nil {
		return fmt.Errorf("modbus: disable servo: %w", err)
	}
	return nil
}
