package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsIncoherentBounds(t *testing.T) {
	_, err := New(Base(0))
	assert.Error(t, err)

	_, err = New(Min(10*time.Second), Max(time.Second))
	assert.Error(t, err)

	_, err = New(Min(-time.Second))
	assert.Error(t, err)
}

func TestDurationStaysWithinBounds(t *testing.T) {
	s, err := New(
		Base(10*time.Millisecond),
		Min(5*time.Millisecond),
		Max(100*time.Millisecond),
	)
	require.NoError(t, err)

	for attempt := uint(0); attempt < 16; attempt++ {
		for i := 0; i < 100; i++ {
			d := s.Duration(attempt)
			assert.GreaterOrEqual(t, d, 5*time.Millisecond)
			assert.LessOrEqual(t, d, 100*time.Millisecond)
		}
	}
}

func TestDurationGrowsWithAttempts(t *testing.T) {
	s, err := New(
		Base(time.Millisecond),
		Min(0),
		Max(time.Hour),
	)
	require.NoError(t, err)

	// At attempt 20 the upper bound of the jitter window is base*2^20
	// (about 17 minutes), far past the 1ms window of attempt 0; sample
	// enough draws that exceeding 500ms is overwhelmingly likely.
	var sawLarge bool
	for i := 0; i < 200; i++ {
		if s.Duration(20) > 500*time.Millisecond {
			sawLarge = true
			break
		}
	}
	assert.True(t, sawLarge)
}

func TestRetryAfterClamps(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfter(-time.Second))
	assert.Equal(t, 5*time.Second, RetryAfter(5*time.Second))
	assert.Equal(t, MaxRetryAfter, RetryAfter(10*time.Minute))
}
