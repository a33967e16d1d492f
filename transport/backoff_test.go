package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffHoldsThenDoublesThenCaps(t *testing.T) {
	b := newBackoff(3, time.Second, 8*time.Second)

	require.Equal(t, time.Second, b.Next())
	require.Equal(t, time.Second, b.Next())
	require.Equal(t, time.Second, b.Next())

	require.Equal(t, 2*time.Second, b.Next())
	require.Equal(t, 4*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next())
	// Capped: further calls never exceed max.
	require.Equal(t, 8*time.Second, b.Next())
}
