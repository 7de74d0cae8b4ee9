package domain

import "strconv"

// Port identifies a filament feed port. Valid ports are in [0, extruderCount).
type Port int

// NoPort means no port has been engaged yet.
const NoPort Port = -1

// MaxPorts is the largest number of ports the angle words A..H can address.
const MaxPorts = 8

// Valid reports whether p addresses one of count ports.
func (p Port) Valid(count int) bool {
	return p >= 0 && int(p) < count
}

// String returns the port number, or "none" for NoPort.
func (p Port) String() string {
	if p == NoPort {
		return "none"
	}
	return strconv.Itoa(int(p))
}

// Letter returns the angle word letter used for this port ('A' for port 0).
// It returns 0 for ports that have no letter.
func (p Port) Letter() byte {
	if p < 0 || int(p) >= MaxPorts {
		return 0
	}
	return 'A' + byte(p)
}

// PortForLetter maps an angle word letter back to its port.
func PortForLetter(c byte) (Port, bool) {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c >= 'A'+MaxPorts {
		return NoPort, false
	}
	return Port(c - 'A'), true
}
