// Package ticker provides a mockable periodic-tick source so tests can
// drive the health supervisor's timing deterministically instead of
// sleeping on a real clock.
package ticker

import "time"

// Ticker is satisfied by both Interval (backed by a real time.Ticker) and
// Mock (driven by tests). Callers select on Ticks() rather than holding a
// concrete *time.Ticker, so production code and tests share one interface.
type Ticker interface {
	// Ticks returns the channel that fires on each tick.
	Ticks() <-chan time.Time
	// Resume restarts ticking at the configured interval.
	Resume()
	// Stop releases the underlying timer. The ticker must not be used again.
	Stop()
}

// Interval is a Ticker backed by a real time.Ticker.
type Interval struct {
	ticker   *time.Ticker
	interval time.Duration
}

// New returns an Interval ticking every d. It starts paused; call Resume to
// begin ticking.
func New(d time.Duration) *Interval {
	return &Interval{interval: d}
}

func (i *Interval) Ticks() <-chan time.Time {
	if i.ticker == nil {
		return nil
	}
	return i.ticker.C
}

func (i *Interval) Resume() {
	if i.ticker != nil {
		i.ticker.Stop()
	}
	i.ticker = time.NewTicker(i.interval)
}

func (i *Interval) Stop() {
	if i.ticker != nil {
		i.ticker.Stop()
	}
}
