package admission

import (
	"testing"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T) *Policy {
	p, err := NewPolicy(100, 100)
	require.NoError(t, err)
	return p
}

func TestNewPolicy_RejectsInvalidThresholds(t *testing.T) {
	_, err := NewPolicy(0, 100)
	assert.Error(t, err)

	_, err = NewPolicy(-5, 100)
	assert.Error(t, err)

	_, err = NewPolicy(100, -1)
	assert.Error(t, err)
}

func TestShouldPersist_AccuracyGateDominates(t *testing.T) {
	p := newTestPolicy(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	noisy := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: 500, Timestamp: now}

	// Rejected even as the very first fix with all other gates vacuous.
	assert.False(t, p.ShouldPersist(noisy, time.Minute, nil, time.Time{}, now))

	// Rejected even when far away and long after the last save.
	lastSaved := models.Fix{Latitude: 40, Longitude: -70, HorizontalAccuracy: 5}
	assert.False(t, p.ShouldPersist(noisy, time.Minute, &lastSaved, now.Add(-time.Hour), now))
}

func TestShouldPersist_NegativeAccuracyIsUnknown(t *testing.T) {
	p := newTestPolicy(t)
	now := time.Now()
	fix := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: -1, Timestamp: now}
	assert.False(t, p.ShouldPersist(fix, time.Minute, nil, time.Time{}, now))
}

func TestShouldPersist_FirstFixAccepted(t *testing.T) {
	p := newTestPolicy(t)
	now := time.Now()
	fix := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: 10, Timestamp: now}
	assert.True(t, p.ShouldPersist(fix, time.Minute, nil, time.Time{}, now))
}

func TestShouldPersist_TimeGate(t *testing.T) {
	p := newTestPolicy(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastSaved := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: 5}

	// Far enough to pass the distance gate.
	fix := models.Fix{Latitude: 52.01, Longitude: 13, HorizontalAccuracy: 5, Timestamp: now}

	// Interval not yet elapsed.
	assert.False(t, p.ShouldPersist(fix, time.Minute, &lastSaved, now.Add(-30*time.Second), now))

	// Interval elapsed.
	assert.True(t, p.ShouldPersist(fix, time.Minute, &lastSaved, now.Add(-61*time.Second), now))
}

func TestShouldPersist_DistanceGate(t *testing.T) {
	p := newTestPolicy(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastSaved := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: 5}
	lastSavedAt := now.Add(-time.Hour)

	// ~55m north: under the 100m threshold.
	near := models.Fix{Latitude: 52.0005, Longitude: 13, HorizontalAccuracy: 5, Timestamp: now}
	assert.False(t, p.ShouldPersist(near, time.Minute, &lastSaved, lastSavedAt, now))

	// ~555m north: clears it.
	far := models.Fix{Latitude: 52.005, Longitude: 13, HorizontalAccuracy: 5, Timestamp: now}
	assert.True(t, p.ShouldPersist(far, time.Minute, &lastSaved, lastSavedAt, now))
}

func TestShouldPersist_StationarySettling(t *testing.T) {
	// At a constant position, after the first acceptance no further fix is
	// accepted: the distance gate holds at 0m regardless of elapsed time.
	p := newTestPolicy(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fix := models.Fix{Latitude: 52, Longitude: 13, HorizontalAccuracy: 5, Timestamp: t0}

	require.True(t, p.ShouldPersist(fix, 600*time.Second, nil, time.Time{}, t0))

	saved := fix
	for _, elapsed := range []time.Duration{5 * time.Second, 599 * time.Second, 601 * time.Second, 24 * time.Hour} {
		now := t0.Add(elapsed)
		next := fix
		next.Timestamp = now
		assert.Falsef(t, p.ShouldPersist(next, 600*time.Second, &saved, t0, now), "elapsed %s", elapsed)
	}
}
