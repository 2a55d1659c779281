// Package history persists accepted fixes in sqlite and serves them back in
// pages and time-ranged slices.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DefaultRangeFetchCap bounds how many records a single range query may
// materialize in memory.
const DefaultRangeFetchCap = 500

const recordColumns = `id, latitude, longitude, altitude,
	horizontal_accuracy, vertical_accuracy, course, course_accuracy,
	speed, speed_accuracy, fix_time, recorded_at`

// Store is the durable, timestamp-ordered collection of history records.
// Writes go through a single pooled connection so concurrent readers never
// observe a torn write.
type Store struct {
	db            *sql.DB
	rangeFetchCap int
	logger        zerolog.Logger
}

// NewStore opens (or creates) the sqlite database at path, applies pending
// schema migrations, and returns a Store. rangeFetchCap <= 0 falls back to
// DefaultRangeFetchCap.
func NewStore(path string, rangeFetchCap int, logger zerolog.Logger) (*Store, error) {
	if rangeFetchCap <= 0 {
		rangeFetchCap = DefaultRangeFetchCap
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer; WAL keeps readers unblocked during inserts and purges.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}

	s := &Store{
		db:            db,
		rangeFetchCap: rangeFetchCap,
		logger:        logger,
	}

	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Int("range_fetch_cap", rangeFetchCap).Msg("History store opened")
	return s, nil
}

// Insert persists one record. A failure loses only this record and is
// reported to the caller.
func (s *Store) Insert(rec models.HistoryRecord) error {
	_, err := s.db.Exec(`INSERT INTO history (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Latitude,
		rec.Longitude,
		rec.Altitude,
		rec.HorizontalAccuracy,
		rec.VerticalAccuracy,
		rec.Course,
		rec.CourseAccuracy,
		rec.Speed,
		rec.SpeedAccuracy,
		rec.Timestamp.UnixNano(),
		rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// Count returns the total number of persisted records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history records: %w", err)
	}
	return n, nil
}

// FetchPage returns up to limit records starting at offset, ordered by fix
// timestamp descending.
func (s *Store) FetchPage(offset, limit int) ([]models.HistoryRecord, error) {
	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM history
		ORDER BY fix_time DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history page: %w", err)
	}
	return scanRecords(rows)
}

// FetchRange returns records with fix timestamps in [start, end], ordered
// descending and bounded by the range fetch cap. An inverted range yields an
// empty result, not an error.
func (s *Store) FetchRange(start, end time.Time) ([]models.HistoryRecord, error) {
	if end.Before(start) {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM history
		WHERE fix_time >= ? AND fix_time <= ?
		ORDER BY fix_time DESC LIMIT ?`,
		start.UnixNano(), end.UnixNano(), s.rangeFetchCap)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history range: %w", err)
	}
	return scanRecords(rows)
}

// DeleteOlderThan removes records whose fix timestamp is before cutoff and
// returns how many were deleted.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history WHERE fix_time < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge history records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge row count: %w", err)
	}
	return n, nil
}

// DeleteAll clears the entire history and returns how many records were
// removed.
func (s *Store) DeleteAll() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read clear row count: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]models.HistoryRecord, error) {
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		var fixTime, recordedAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Latitude,
			&rec.Longitude,
			&rec.Altitude,
			&rec.HorizontalAccuracy,
			&rec.VerticalAccuracy,
			&rec.Course,
			&rec.CourseAccuracy,
			&rec.Speed,
			&rec.SpeedAccuracy,
			&fixTime,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.Timestamp = time.Unix(0, fixTime).UTC()
		rec.RecordedAt = time.Unix(0, recordedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history records: %w", err)
	}
	return records, nil
}
