package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNow_Monotonic(t *testing.T) {
	a := Now()
	time.Sleep(2 * time.Millisecond)
	b := Now()

	require.False(t, a.IsZero())
	require.Greater(t, int64(b), int64(a))
	require.GreaterOrEqual(t, Elapsed(a, b), 2*time.Millisecond)
}

func TestElapsedSeconds(t *testing.T) {
	start := Timestamp(1_000_000_000)
	end := Timestamp(3_500_000_000)

	require.InDelta(t, 2.5, ElapsedSeconds(start, end), 1e-9)
	require.Equal(t, -2500*time.Millisecond, Elapsed(end, start))
}
