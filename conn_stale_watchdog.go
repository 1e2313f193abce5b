package guestws

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// staleWatchdog fires when no inbound frame arrived for timeout while the connection is
// open. A zero timeout disables it.
type staleWatchdog struct {
	clock   clockwork.Clock
	timeout time.Duration
	timer   clockwork.Timer
}

func newStaleWatchdog(clock clockwork.Clock, timeout time.Duration) *staleWatchdog {
	return &staleWatchdog{clock: clock, timeout: timeout}
}

// arm restarts the countdown. The timer is replaced rather than Reset so a tick already
// sitting in the old channel can never be mistaken for a new expiry.
func (w *staleWatchdog) arm() {
	if w.timeout <= 0 {
		return
	}
	w.disarm()
	w.timer = w.clock.NewTimer(w.timeout)
}

func (w *staleWatchdog) disarm() {
	if w.timer == nil {
		return
	}
	w.timer.Stop()
	w.timer = nil
}

func (w *staleWatchdog) fired() {
	w.timer = nil
}

func (w *staleWatchdog) C() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.Chan()
}
