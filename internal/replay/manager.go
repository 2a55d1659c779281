package replay

import (
	"time"

	"github.com/benmeehan/tracklog-agent/internal/history"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Manager owns the live replay sessions. Sessions are created from a time
// range fetched through the paginated reader and are looked up concurrently
// by presentation consumers.
type Manager struct {
	reader      *history.PaginatedReader
	baseCadence time.Duration
	sessions    cmap.ConcurrentMap[string, *Cursor]
	logger      zerolog.Logger
}

// NewManager builds a Manager serving cursors at the given base cadence.
func NewManager(reader *history.PaginatedReader, baseCadence time.Duration, logger zerolog.Logger) *Manager {
	if baseCadence <= 0 {
		baseCadence = DefaultBaseCadence
	}
	return &Manager{
		reader:      reader,
		baseCadence: baseCadence,
		sessions:    cmap.New[*Cursor](),
		logger:      logger,
	}
}

// CreateSession fetches the requested window and registers a paused cursor
// over it. An empty window yields a valid cursor that never advances.
func (m *Manager) CreateSession(start, end time.Time) (string, *Cursor, error) {
	records, err := m.reader.GetRange(start, end)
	if err != nil {
		return "", nil, err
	}

	id := uuid.New().String()
	cursor := NewCursor(records, start, end, m.baseCadence, m.logger)
	m.sessions.Set(id, cursor)

	m.logger.Info().
		Str("session_id", id).
		Int("samples", cursor.Len()).
		Time("window_start", start).
		Time("window_end", end).
		Msg("Replay session created")
	return id, cursor, nil
}

// Session returns the cursor for id, if it exists.
func (m *Manager) Session(id string) (*Cursor, bool) {
	return m.sessions.Get(id)
}

// CloseSession pauses and removes the session. Closing an unknown session is
// a no-op.
func (m *Manager) CloseSession(id string) {
	if cursor, ok := m.sessions.Get(id); ok {
		cursor.Pause()
		m.sessions.Remove(id)
		m.logger.Info().Str("session_id", id).Msg("Replay session closed")
	}
}

// CloseAll pauses and removes every live session.
func (m *Manager) CloseAll() {
	for _, id := range m.sessions.Keys() {
		m.CloseSession(id)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.sessions.Count()
}
