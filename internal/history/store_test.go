package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(path, DefaultRangeFetchCap, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func recordAt(ts time.Time) models.HistoryRecord {
	return models.NewHistoryRecord(models.Fix{
		Latitude:           52.52,
		Longitude:          13.405,
		Altitude:           34.5,
		HorizontalAccuracy: 8,
		VerticalAccuracy:   12,
		Course:             270,
		CourseAccuracy:     10,
		Speed:              1.5,
		SpeedAccuracy:      0.5,
		Timestamp:          ts,
	}, ts)
}

func TestStore_InsertRoundTrip(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inserted := make([]models.HistoryRecord, 0, 5)
	for i := 0; i < 5; i++ {
		rec := recordAt(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, s.Insert(rec))
		inserted = append(inserted, rec)
	}

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	page, err := s.FetchPage(0, 5)
	require.NoError(t, err)
	require.Len(t, page, 5)

	// Descending timestamp order, every field intact.
	for i, got := range page {
		want := inserted[len(inserted)-1-i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Latitude, got.Latitude)
		assert.Equal(t, want.Longitude, got.Longitude)
		assert.Equal(t, want.Altitude, got.Altitude)
		assert.Equal(t, want.HorizontalAccuracy, got.HorizontalAccuracy)
		assert.Equal(t, want.VerticalAccuracy, got.VerticalAccuracy)
		assert.Equal(t, want.Course, got.Course)
		assert.Equal(t, want.CourseAccuracy, got.CourseAccuracy)
		assert.Equal(t, want.Speed, got.Speed)
		assert.Equal(t, want.SpeedAccuracy, got.SpeedAccuracy)
		assert.True(t, want.Timestamp.Equal(got.Timestamp))
		assert.True(t, want.RecordedAt.Equal(got.RecordedAt))
	}
}

func TestStore_FetchRange(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Insert(recordAt(base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := s.FetchRange(base.Add(2*time.Hour), base.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 4) // inclusive bounds
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestStore_FetchRangeInvertedIsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Insert(recordAt(time.Now())))

	got, err := s.FetchRange(time.Now(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_FetchRangeHonorsCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(path, 3, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Insert(recordAt(base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.FetchRange(base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	old := recordAt(now.AddDate(0, 0, -40))
	fresh := recordAt(now.AddDate(0, 0, -1))
	require.NoError(t, s.Insert(old))
	require.NoError(t, s.Insert(fresh))

	deleted, err := s.DeleteOlderThan(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	page, err := s.FetchPage(0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, fresh.ID, page[0].ID)
}

func TestStore_DeleteAll(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(recordAt(time.Now().Add(time.Duration(i)*time.Second))))
	}

	deleted, err := s.DeleteAll()
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(path, DefaultRangeFetchCap, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Insert(recordAt(time.Now())))
	require.NoError(t, s.Close())

	// Second open runs migrations against an up-to-date schema.
	s2, err := NewStore(path, DefaultRangeFetchCap, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
