package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDepthSchedule_EveryFrameOverride(t *testing.T) {
	s := NewDepthSchedule(30, true, 10, true, 0)
	require.Equal(t, 1, s.SkipInterval())
	for i := 0; i < 5; i++ {
		require.True(t, s.ShouldSample(i))
	}
}

func TestDepthSchedule_ComputesIntervalFromNativeFPS(t *testing.T) {
	s := NewDepthSchedule(30, true, 10, false, 0)
	require.Equal(t, 3, s.SkipInterval())
	require.True(t, s.ShouldSample(0))
	require.False(t, s.ShouldSample(1))
	require.False(t, s.ShouldSample(2))
	require.True(t, s.ShouldSample(3))
}

func TestDepthSchedule_IntervalNeverBelowOne(t *testing.T) {
	s := NewDepthSchedule(10, true, 100, false, 0)
	require.Equal(t, 1, s.SkipInterval())
}

func TestDepthSchedule_UnknownFPSFallsBackToFrameCount(t *testing.T) {
	s := NewDepthSchedule(0, false, 10, false, 5)
	require.Equal(t, 5, s.SkipInterval())
}

func TestDepthSchedule_UnknownFPSDefaultFallback(t *testing.T) {
	s := NewDepthSchedule(0, false, 10, false, 0)
	require.Equal(t, defaultLiveFrameInterval, s.SkipInterval())
}

func TestDepthSchedule_NegativeIndexNeverSamples(t *testing.T) {
	s := NewDepthSchedule(30, true, 10, false, 0)
	require.False(t, s.ShouldSample(-1))
}
