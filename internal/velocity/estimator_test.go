package velocity

import (
	"testing"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metersPerDegreeLatitude is close enough for test geometry.
const metersPerDegreeLatitude = 111194.0

func fixAt(lat float64, ts time.Time) models.Fix {
	return models.Fix{
		Latitude:           lat,
		Longitude:          0,
		HorizontalAccuracy: 5,
		Timestamp:          ts,
	}
}

// fixMovedBy returns a fix displaced northward from base by the given number
// of meters.
func fixMovedBy(base models.Fix, meters float64, ts time.Time) models.Fix {
	return fixAt(base.Latitude+meters/metersPerDegreeLatitude, ts)
}

func newTestEstimator(t *testing.T) *Estimator {
	e, err := NewEstimator(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestEstimator_FirstFixIsStationary(t *testing.T) {
	e := newTestEstimator(t)
	band := e.Update(fixAt(52.0, time.Now()))
	assert.Equal(t, models.BandStationary, band)
	assert.Equal(t, 0.0, e.LastSpeed())
}

func TestEstimator_MonotonicBandMapping(t *testing.T) {
	cases := []struct {
		speed float64
		want  models.SpeedBand
	}{
		{0, models.BandStationary},
		{0.1, models.BandLowSpeed},
		{0.6, models.BandMediumSpeed},
		{1.0, models.BandHighSpeed},
		{3.0, models.BandDriving},
	}

	for _, tc := range cases {
		e := newTestEstimator(t)
		t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		first := fixAt(52.0, t0)
		e.Update(first)

		// Move tc.speed * 10s meters over 10 seconds.
		second := fixMovedBy(first, tc.speed*10, t0.Add(10*time.Second))
		band := e.Update(second)
		assert.Equalf(t, tc.want, band, "speed %.2f m/s", tc.speed)
	}
}

func TestEstimator_IntervalMapping(t *testing.T) {
	e := newTestEstimator(t)
	assert.Equal(t, 5*time.Second, e.Interval(models.BandDriving))
	assert.Equal(t, 10*time.Second, e.Interval(models.BandHighSpeed))
	assert.Equal(t, 30*time.Second, e.Interval(models.BandMediumSpeed))
	assert.Equal(t, 60*time.Second, e.Interval(models.BandLowSpeed))
	assert.Equal(t, 600*time.Second, e.Interval(models.BandStationary))
}

func TestEstimator_NonPositiveElapsedKeepsBand(t *testing.T) {
	e := newTestEstimator(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := fixAt(52.0, t0)
	e.Update(first)

	// Establish a driving band: 30m over 10s = 3 m/s.
	second := fixMovedBy(first, 30, t0.Add(10*time.Second))
	require.Equal(t, models.BandDriving, e.Update(second))

	// Duplicate timestamp: band unchanged regardless of displacement.
	dup := fixMovedBy(second, 500, second.Timestamp)
	assert.Equal(t, models.BandDriving, e.Update(dup))
}

// The estimator overwrites its stored previous fix even when the band
// computation is skipped, so the next speed is computed from the degenerate
// fix's position rather than the last valid one. This pins down the chosen
// behavior for the ambiguous case.
func TestEstimator_ZeroElapsedOverwritesPreviousFix(t *testing.T) {
	e := newTestEstimator(t)
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := fixAt(52.0, t0)
	e.Update(first)

	// Degenerate fix 1000m away with the same timestamp.
	jump := fixMovedBy(first, 1000, t0)
	e.Update(jump)

	// Next fix is at the jump position 10s later: speed should be ~0
	// because the stored previous fix is the jump, not the first fix.
	settle := fixMovedBy(first, 1000, t0.Add(10*time.Second))
	assert.Equal(t, models.BandStationary, e.Update(settle))
}

func TestNewEstimator_RejectsInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()

	bad := DefaultConfig()
	bad.Thresholds[0] = -1
	_, err := NewEstimator(bad, logger)
	assert.Error(t, err)

	unordered := DefaultConfig()
	unordered.Thresholds[1] = 3.0 // above the driving threshold
	_, err = NewEstimator(unordered, logger)
	assert.Error(t, err)

	zeroInterval := DefaultConfig()
	zeroInterval.Intervals[2] = 0
	_, err = NewEstimator(zeroInterval, logger)
	assert.Error(t, err)
}
