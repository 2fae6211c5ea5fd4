package database

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	latest, err := latestVersion(src)

	require.NoError(t, err)
	assert.Equal(t, uint(1), latest)
}

func TestStatus_Pending(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"fresh database", Status{Current: 0, Latest: 1}, true},
		{"up to date", Status{Current: 1, Latest: 1}, false},
		{"dirty at latest", Status{Current: 1, Latest: 1, Dirty: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Pending())
		})
	}
}
