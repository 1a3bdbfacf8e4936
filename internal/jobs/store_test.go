package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayIsQuadratic(t *testing.T) {
	assert.Equal(t, 1*time.Minute, BackoffDelay(1))
	assert.Equal(t, 4*time.Minute, BackoffDelay(2))
	assert.Equal(t, 9*time.Minute, BackoffDelay(3))
}

func TestBackoffDelayGrowsMonotonically(t *testing.T) {
	for n := 1; n < MaxAttempts; n++ {
		assert.Less(t, BackoffDelay(n), BackoffDelay(n+1))
	}
}

func TestTerminal(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tc := range cases {
		j := Job{Status: tc.status}
		assert.Equal(t, tc.want, j.Terminal(), tc.status)
	}
}
