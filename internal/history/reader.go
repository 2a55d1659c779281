package history

import (
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 50

// PaginatedReader serves memory-bounded forward pagination over a Store.
// One reader owns one cursor; consumers that need independent progress
// construct their own reader.
type PaginatedReader struct {
	store    *Store
	pageSize int

	mu          sync.Mutex
	pageIndex   int
	totalCount  int
	loadedCount int
	hasMore     bool
}

// NewPaginatedReader builds a reader with a fixed page size and primes the
// cursor with the current record count.
func NewPaginatedReader(store *Store, pageSize int) (*PaginatedReader, error) {
	if pageSize <= 0 {
		return nil, errors.New("page size must be positive")
	}
	r := &PaginatedReader{
		store:    store,
		pageSize: pageSize,
	}
	if err := r.ResetPagination(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadNextPage returns the next page of records in descending timestamp
// order. Once the cursor is exhausted it keeps returning an empty result
// without error.
func (r *PaginatedReader) LoadNextPage() ([]models.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasMore {
		return nil, nil
	}

	records, err := r.store.FetchPage(r.pageIndex*r.pageSize, r.pageSize)
	if err != nil {
		return nil, err
	}

	r.pageIndex++
	r.loadedCount += len(records)
	r.hasMore = len(records) == r.pageSize && r.loadedCount < r.totalCount

	return records, nil
}

// ResetPagination recomputes the total count and rewinds to the first page.
// Callers must reset after external mutations (inserts, purges) before
// re-deriving totals, otherwise counts go stale.
func (r *PaginatedReader) ResetPagination() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	total, err := r.store.Count()
	if err != nil {
		return err
	}

	r.pageIndex = 0
	r.loadedCount = 0
	r.totalCount = total
	r.hasMore = total > 0
	return nil
}

// HasMorePages reports whether another LoadNextPage call can return records.
func (r *PaginatedReader) HasMorePages() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// TotalCount returns the record count as of the last reset.
func (r *PaginatedReader) TotalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCount
}

// LoadedCount returns how many records the cursor has handed out since the
// last reset.
func (r *PaginatedReader) LoadedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadedCount
}

// GetRange bypasses the cursor and fetches a bounded time-ranged slice
// directly from the store, independent of pagination progress.
func (r *PaginatedReader) GetRange(start, end time.Time) ([]models.HistoryRecord, error) {
	return r.store.FetchRange(start, end)
}
