package models

import (
	"time"

	"github.com/google/uuid"
)

// Fix represents a single raw position reading from a positioning sensor.
// A negative accuracy value means the sensor could not estimate it and must
// be treated as infinitely poor.
type Fix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
	Course             float64   `json:"course"`
	CourseAccuracy     float64   `json:"course_accuracy"`
	Speed              float64   `json:"speed"`
	SpeedAccuracy      float64   `json:"speed_accuracy"`
	Timestamp          time.Time `json:"timestamp"`
}

// HistoryRecord is a persisted fix. Timestamp carries the sensor-reported
// instant and is the ordering key; RecordedAt is the ingestion wall clock.
// Records are never mutated after insert.
type HistoryRecord struct {
	ID string `json:"id"`
	Fix
	RecordedAt time.Time `json:"recorded_at"`
}

// NewHistoryRecord builds a record for an accepted fix with a fresh
// storage identifier.
func NewHistoryRecord(fix Fix, recordedAt time.Time) HistoryRecord {
	return HistoryRecord{
		ID:         uuid.New().String(),
		Fix:        fix,
		RecordedAt: recordedAt,
	}
}
