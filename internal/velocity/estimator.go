// Package velocity derives a speed band from consecutive position fixes and
// maps each band to a logging interval.
package velocity

import (
	"errors"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/benmeehan/tracklog-agent/pkg/geo"
	"github.com/rs/zerolog"
)

// bandCount covers stationary through driving.
const bandCount = 5

// bandsDescending is the evaluation order for threshold matching, fastest
// first so the first match wins.
var bandsDescending = [bandCount]models.SpeedBand{
	models.BandDriving,
	models.BandHighSpeed,
	models.BandMediumSpeed,
	models.BandLowSpeed,
	models.BandStationary,
}

// Config holds the band thresholds (m/s) and logging intervals, both in
// descending band order: driving, highSpeed, mediumSpeed, lowSpeed,
// stationary. The stationary threshold is expected to be zero so that it
// matches any speed.
type Config struct {
	Thresholds [bandCount]float64
	Intervals  [bandCount]time.Duration
}

// DefaultConfig returns the production thresholds and intervals.
func DefaultConfig() Config {
	return Config{
		Thresholds: [bandCount]float64{2.5, 0.83, 0.5, 0.083, 0},
		Intervals: [bandCount]time.Duration{
			5 * time.Second,
			10 * time.Second,
			30 * time.Second,
			60 * time.Second,
			600 * time.Second,
		},
	}
}

// Estimator computes instantaneous speed from consecutive fixes and
// classifies it into a band. It keeps exactly one previous fix, overwritten
// on every call.
type Estimator struct {
	cfg       Config
	prev      *models.Fix
	lastBand  models.SpeedBand
	lastSpeed float64
	logger    zerolog.Logger
}

// NewEstimator validates the configuration and returns an Estimator.
// Thresholds must be non-negative and strictly descending; intervals must
// be positive.
func NewEstimator(cfg Config, logger zerolog.Logger) (*Estimator, error) {
	for i, thr := range cfg.Thresholds {
		if thr < 0 {
			return nil, errors.New("speed band thresholds must be non-negative")
		}
		if i > 0 && thr >= cfg.Thresholds[i-1] {
			return nil, errors.New("speed band thresholds must be strictly descending")
		}
	}
	for _, iv := range cfg.Intervals {
		if iv <= 0 {
			return nil, errors.New("speed band intervals must be positive")
		}
	}
	return &Estimator{
		cfg:      cfg,
		lastBand: models.BandStationary,
		logger:   logger,
	}, nil
}

// Update consumes the next fix and returns the current speed band. The
// first call returns the stationary band without computing a speed. A
// non-positive elapsed time between fixes (out-of-order or duplicate
// timestamps) returns the previously computed band unchanged. The stored
// previous fix is overwritten unconditionally so a degenerate fix cannot
// poison future calculations.
func (e *Estimator) Update(fix models.Fix) models.SpeedBand {
	prev := e.prev
	cp := fix
	e.prev = &cp

	if prev == nil {
		e.lastBand = models.BandStationary
		return e.lastBand
	}

	elapsed := fix.Timestamp.Sub(prev.Timestamp)
	if elapsed <= 0 {
		e.logger.Debug().
			Time("prev", prev.Timestamp).
			Time("next", fix.Timestamp).
			Msg("Non-positive elapsed time between fixes, keeping previous band")
		return e.lastBand
	}

	distance := geo.Distance(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude)
	e.lastSpeed = distance / elapsed.Seconds()
	e.lastBand = e.classify(e.lastSpeed)

	e.logger.Debug().
		Float64("speed_mps", e.lastSpeed).
		Str("band", e.lastBand.String()).
		Msg("Velocity updated")
	return e.lastBand
}

// Interval returns the logging interval for the given band.
func (e *Estimator) Interval(band models.SpeedBand) time.Duration {
	for i, b := range bandsDescending {
		if b == band {
			return e.cfg.Intervals[i]
		}
	}
	// Unknown bands fall back to the most conservative interval.
	return e.cfg.Intervals[bandCount-1]
}

// LastSpeed returns the most recently computed speed in m/s. It is zero
// until two fixes with positive elapsed time have been observed.
func (e *Estimator) LastSpeed() float64 {
	return e.lastSpeed
}

func (e *Estimator) classify(speed float64) models.SpeedBand {
	for i, band := range bandsDescending {
		if speed >= e.cfg.Thresholds[i] {
			return band
		}
	}
	return models.BandStationary
}
