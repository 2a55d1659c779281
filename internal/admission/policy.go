// Package admission decides whether an incoming fix is persisted to the
// history store.
package admission

import (
	"errors"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/benmeehan/tracklog-agent/pkg/geo"
)

// Policy gates fixes on accuracy, elapsed time since the last persisted fix,
// and distance moved since the last persisted fix. It is a pure decision
// function; the caller records lastSaved/lastSavedAt after a successful
// insert.
type Policy struct {
	accuracyCeilingMeters   float64
	distanceThresholdMeters float64
}

// NewPolicy validates the gates and returns a Policy. The accuracy ceiling
// keeps noisy fixes out of the history; the distance threshold prevents
// redundant records when time has elapsed but the device has not moved.
func NewPolicy(accuracyCeilingMeters, distanceThresholdMeters float64) (*Policy, error) {
	if accuracyCeilingMeters <= 0 {
		return nil, errors.New("accuracy ceiling must be positive")
	}
	if distanceThresholdMeters < 0 {
		return nil, errors.New("distance threshold must be non-negative")
	}
	return &Policy{
		accuracyCeilingMeters:   accuracyCeilingMeters,
		distanceThresholdMeters: distanceThresholdMeters,
	}, nil
}

// ShouldPersist reports whether the fix should be committed to storage.
// interval is the velocity-adaptive logging interval for the current speed
// band; the distance gate is deliberately not band-adaptive. A nil lastSaved
// (first fix ever) skips the time and distance gates. A negative horizontal
// accuracy means the sensor could not estimate it and the fix is rejected.
func (p *Policy) ShouldPersist(fix models.Fix, interval time.Duration, lastSaved *models.Fix, lastSavedAt time.Time, now time.Time) bool {
	if fix.HorizontalAccuracy < 0 || fix.HorizontalAccuracy > p.accuracyCeilingMeters {
		return false
	}

	if !lastSavedAt.IsZero() && now.Sub(lastSavedAt) < interval {
		return false
	}

	if lastSaved != nil {
		moved := geo.Distance(lastSaved.Latitude, lastSaved.Longitude, fix.Latitude, fix.Longitude)
		if moved < p.distanceThresholdMeters {
			return false
		}
	}

	return true
}
