package ticker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptobyte3/raiden/internal/ticker"
)

func TestMockForceDeliversOneTickNonBlocking(t *testing.T) {
	m := ticker.NewMock()
	m.Resume()

	now := time.Now()
	m.Force(now)

	select {
	case got := <-m.Ticks():
		require.Equal(t, now, got)
	default:
		t.Fatal("forced tick was not delivered")
	}

	// A second Force with nothing draining the channel must not block.
	done := make(chan struct{})
	go func() {
		m.Force(time.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Force must never block")
	}
}

func TestMockStopSuppressesFurtherTicks(t *testing.T) {
	m := ticker.NewMock()
	m.Stop()
	m.Force(time.Now())

	select {
	case <-m.Ticks():
		t.Fatal("a stopped mock must not deliver ticks")
	default:
	}
}

func TestIntervalTicksAfterResume(t *testing.T) {
	iv := ticker.New(5 * time.Millisecond)
	iv.Resume()
	defer iv.Stop()

	select {
	case <-iv.Ticks():
	case <-time.After(time.Second):
		t.Fatal("interval ticker never ticked after Resume")
	}
}
