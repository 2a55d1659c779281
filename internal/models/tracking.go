package models

import "time"

// SpeedBand is a discretized velocity category driving the adaptive
// logging interval. Bands are ordered from slowest to fastest.
type SpeedBand int

const (
	BandStationary SpeedBand = iota
	BandLowSpeed
	BandMediumSpeed
	BandHighSpeed
	BandDriving
)

// String returns the band name for logging.
func (b SpeedBand) String() string {
	switch b {
	case BandStationary:
		return "stationary"
	case BandLowSpeed:
		return "lowSpeed"
	case BandMediumSpeed:
		return "mediumSpeed"
	case BandHighSpeed:
		return "highSpeed"
	case BandDriving:
		return "driving"
	default:
		return "unknown"
	}
}

// Authorization is the positioning collaborator's permission state.
type Authorization int

const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationWhenInUse
	AuthorizationAlways
	AuthorizationDenied
	AuthorizationRestricted
)

// String returns the authorization name for logging.
func (a Authorization) String() string {
	switch a {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationWhenInUse:
		return "when_in_use"
	case AuthorizationAlways:
		return "always"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// TrackingSnapshot is a copy-out view of the tracking state. Consumers
// receive a fresh copy on every read and never hold references into live
// mutable state.
type TrackingSnapshot struct {
	IsTracking       bool
	Authorization    Authorization
	LastFix          *Fix
	LastSavedFix     *Fix
	LastSavedAt      time.Time
	CurrentSpeedBand SpeedBand
	CurrentInterval  time.Duration
	DroppedWrites    uint64
}
