package serial

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// Device is a serial device found on the host.
type Device struct {
	Name         string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String renders the device as one listing line.
func (d Device) String() string {
	if !d.USB {
		return d.Name
	}
	s := fmt.Sprintf("%s  usb %s:%s", d.Name, d.VID, d.PID)
	if d.SerialNumber != "" {
		s += " sn=" + d.SerialNumber
	}
	if d.Product != "" {
		s += " " + d.Product
	}
	return s
}

var detailedPorts = enumerator.GetDetailedPortsList

// ListDevices returns the serial devices present, sorted by name.
func ListDevices() ([]Device, error) {
	list, err := detailedPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]Device, 0, len(list))
	for _, p := range list {
		out = append(out, Device{
			Name:         p.Name,
			USB:          p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
