// backoff.go is the reconnect schedule.

package transport

import "time"

const (
	// MaxReconnectAttempts is how many reconnects are scheduled before the
	// channel gives up until the next explicit Connect.
	MaxReconnectAttempts = 10

	// maxBackoffFactor caps the delay at 30 units.
	maxBackoffFactor = 30

	// DefaultBackoffUnit scales the schedule; tests shrink it.
	DefaultBackoffUnit = time.Second
)

// ReconnectDelay returns the delay before the reconnect scheduled when
// attempts reconnects have already been scheduled: min(2^attempts, 30) units.
func ReconnectDelay(attempts int, unit time.Duration) time.Duration {
	factor := maxBackoffFactor
	if attempts < 5 {
		factor = min(1<<max(attempts, 0), maxBackoffFactor)
	}
	return time.Duration(factor) * unit
}
