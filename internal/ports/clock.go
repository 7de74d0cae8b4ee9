package ports

import "time"

// Clock provides monotonic time and the cooperative wait used while polling.
type Clock interface {
	// Now returns the current time. Only differences between readings are used.
	Now() time.Time

	// Sleep yields for d. It is the host's idle step.
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
