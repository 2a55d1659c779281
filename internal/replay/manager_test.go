package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/history"
	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, n int, base time.Time) *Manager {
	t.Helper()

	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), history.DefaultRangeFetchCap, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Insert(models.NewHistoryRecord(models.Fix{
			Latitude:  48.0,
			Longitude: 11.0,
			Timestamp: ts,
		}, ts)))
	}

	reader, err := history.NewPaginatedReader(store, history.DefaultPageSize)
	require.NoError(t, err)

	return NewManager(reader, DefaultBaseCadence, zerolog.Nop())
}

func TestManager_SessionLifecycle(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, 10, base)

	id, cursor, err := m.CreateSession(base, base.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, 10, cursor.Len())
	assert.Equal(t, 1, m.Count())

	got, ok := m.Session(id)
	require.True(t, ok)
	assert.Same(t, cursor, got)

	m.CloseSession(id)
	assert.Zero(t, m.Count())
	_, ok = m.Session(id)
	assert.False(t, ok)

	// Closing again is a no-op.
	m.CloseSession(id)
}

func TestManager_EmptyWindowSession(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, 5, base)

	// A window before any record yields a valid, inert cursor.
	_, cursor, err := m.CreateSession(base.AddDate(-1, 0, 0), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, cursor.Len())
	assert.False(t, cursor.Advance())
}

func TestManager_CloseAll(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, 5, base)

	for i := 0; i < 3; i++ {
		_, cursor, err := m.CreateSession(base, base.Add(time.Hour))
		require.NoError(t, err)
		cursor.Play()
	}
	require.Equal(t, 3, m.Count())

	m.CloseAll()
	assert.Zero(t, m.Count())
}
