package guestws

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const defaultReconnectDelay = 5 * time.Second

// reconnectScheduler holds at most one pending reconnect timer. The delay comes from a
// backoff policy, a constant one by default.
type reconnectScheduler struct {
	clock  clockwork.Clock
	policy backoff.BackOff
	timer  clockwork.Timer
}

func newReconnectScheduler(clock clockwork.Clock, policy backoff.BackOff) *reconnectScheduler {
	if policy == nil {
		policy = NewConstantReconnectPolicy(defaultReconnectDelay)
	}
	return &reconnectScheduler{clock: clock, policy: policy}
}

// NewConstantReconnectPolicy waits delay before every reconnect, forever.
func NewConstantReconnectPolicy(delay time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(delay)
}

// schedule replaces any pending timer. It returns backoff.Stop, and arms nothing, when
// the policy gave up.
func (r *reconnectScheduler) schedule() time.Duration {
	r.cancel()

	delay := r.policy.NextBackOff()
	if delay == backoff.Stop {
		return delay
	}

	r.timer = r.clock.NewTimer(delay)
	return delay
}

// cancel stops the pending timer, reporting whether there was one.
func (r *reconnectScheduler) cancel() bool {
	if r.timer == nil {
		return false
	}
	r.timer.Stop()
	r.timer = nil
	return true
}

// fired forgets the timer whose channel just delivered.
func (r *reconnectScheduler) fired() {
	r.timer = nil
}

func (r *reconnectScheduler) pending() bool {
	return r.timer != nil
}

// reset restarts the policy after a session reached Open.
func (r *reconnectScheduler) reset() {
	r.policy.Reset()
}

func (r *reconnectScheduler) C() <-chan time.Time {
	if r.timer == nil {
		return nil
	}
	return r.timer.Chan()
}
