package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Check(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		failures    int
		wantErr     bool
	}{
		{
			name:        "within limit",
			maxAttempts: 3,
			failures:    2,
		},
		{
			name:        "at limit boundary",
			maxAttempts: 3,
			failures:    3,
			wantErr:     true,
		},
		{
			name:        "exceeds limit",
			maxAttempts: 3,
			failures:    5,
			wantErr:     true,
		},
		{
			name:        "no limit configured",
			maxAttempts: 0,
			failures:    1000,
		},
		{
			name:        "negative limit",
			maxAttempts: -1,
			failures:    1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.maxAttempts, time.Minute)
			for i := 0; i < tt.failures; i++ {
				l.RecordFailure("alice")
			}

			err := l.Check("alice")

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrTooManyAttempts))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLimiter_RecordFailure_Counts(t *testing.T) {
	l := NewLimiter(5, time.Minute)

	assert.Equal(t, 1, l.RecordFailure("alice"))
	assert.Equal(t, 2, l.RecordFailure("alice"))
	assert.Equal(t, 1, l.RecordFailure("bob"))
	assert.Equal(t, 2, l.Failures("alice"))
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	l.RecordFailure("alice")
	require.Error(t, l.Check("alice"))

	l.Reset("alice")

	assert.NoError(t, l.Check("alice"))
	assert.Equal(t, 0, l.Failures("alice"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l := NewLimiter(1, 50*time.Millisecond)
	l.RecordFailure("alice")
	require.Error(t, l.Check("alice"))

	time.Sleep(80 * time.Millisecond)

	assert.NoError(t, l.Check("alice"))
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, time.Minute)

	assert.False(t, l.Enabled())
	assert.Equal(t, 0, l.RecordFailure("alice"))
	assert.Equal(t, 0, l.Failures("alice"))
}
