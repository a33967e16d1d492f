package ticker

import "time"

// Mock is a Ticker tests drive by hand via Force, instead of waiting on a
// real clock.
type Mock struct {
	ticks   chan time.Time
	stopped bool
}

// NewMock returns a Mock ticker with no tick pending. Resume has no effect
// on a Mock; Force delivers ticks until Stop is called.
func NewMock() *Mock {
	return &Mock{ticks: make(chan time.Time, 1)}
}

func (m *Mock) Ticks() <-chan time.Time {
	return m.ticks
}

func (m *Mock) Resume() {}

func (m *Mock) Stop() {
	m.stopped = true
}

// Force delivers a single synthetic tick, as if the interval had elapsed.
func (m *Mock) Force(t time.Time) {
	if m.stopped {
		return
	}
	select {
	case m.ticks <- t:
	default:
	}
}
