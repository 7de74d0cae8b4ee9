package domain

// Presence is the filament presence reported at the sensor location.
// It is recomputed on demand and never cached beyond a single check.
type Presence int

const (
	PresenceAbsent Presence = iota
	PresencePresent
	PresenceSensorError
)

// String returns a human-readable representation of the presence.
func (p Presence) String() string {
	switch p {
	case PresenceAbsent:
		return "Absent"
	case PresencePresent:
		return "Present"
	case PresenceSensorError:
		return "SensorError"
	default:
		return "Unknown"
	}
}
