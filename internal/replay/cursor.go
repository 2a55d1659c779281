// Package replay provides time-scrubbed playback over a previously fetched
// range of history.
package replay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
)

// DefaultBaseCadence is the advance cadence at 1x playback speed.
const DefaultBaseCadence = 550 * time.Millisecond

// MaxSpeedMultiplier bounds how far playback can be sped up.
const MaxSpeedMultiplier = 10.0

// Sample is a lightweight projection of a history record, enough for a
// consumer to place and orient a marker.
type Sample struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Course    float64
	Speed     float64
	Timestamp time.Time
}

// Cursor steps through an in-memory ordered sequence of samples for one time
// window. Playback is purely index-stepping driven by an internal timer;
// nothing is interpolated between samples.
type Cursor struct {
	samples     []Sample
	windowStart time.Time
	windowEnd   time.Time
	baseCadence time.Duration
	logger      zerolog.Logger

	mu         sync.Mutex
	index      int
	playing    bool
	multiplier float64
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	steps chan int
}

// NewCursor projects the given records into samples sorted ascending by
// timestamp (storage hands them out descending) and returns a paused cursor
// at index 0.
func NewCursor(records []models.HistoryRecord, windowStart, windowEnd time.Time, baseCadence time.Duration, logger zerolog.Logger) *Cursor {
	if baseCadence <= 0 {
		baseCadence = DefaultBaseCadence
	}

	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		samples = append(samples, Sample{
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			Altitude:  rec.Altitude,
			Course:    rec.Course,
			Speed:     rec.Speed,
			Timestamp: rec.Timestamp,
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	return &Cursor{
		samples:     samples,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		baseCadence: baseCadence,
		logger:      logger,
		multiplier:  1,
		steps:       make(chan int, 16),
	}
}

// Advance moves the index forward by one and reports whether it moved. At
// the terminal index it returns false and leaves all state unchanged; there
// is no wraparound.
func (c *Cursor) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked()
}

func (c *Cursor) advanceLocked() bool {
	if c.index >= len(c.samples)-1 {
		return false
	}
	c.index++
	select {
	case c.steps <- c.index:
	default:
		// Slow consumers miss steps rather than stall playback.
	}
	return true
}

// Seek moves the index to i, clamped to [0, len-1].
func (c *Cursor) Seek(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) == 0 {
		c.index = 0
		return
	}
	if i < 0 {
		i = 0
	}
	if i > len(c.samples)-1 {
		i = len(c.samples) - 1
	}
	c.index = i
}

// SetSpeedMultiplier rescales the advance cadence. Valid values are in
// (0, MaxSpeedMultiplier]. A change during playback takes effect on the next
// scheduled tick; it never skips or repeats an index.
func (c *Cursor) SetSpeedMultiplier(x float64) error {
	if x <= 0 || x > MaxSpeedMultiplier {
		return errors.New("speed multiplier must be in (0, 10]")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multiplier = x
	return nil
}

// Play starts timer-driven advancing. Playing an empty, already-playing, or
// terminal-position cursor is a no-op. The cursor pauses itself when it
// reaches the terminal index.
func (c *Cursor) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing || c.index >= len(c.samples)-1 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.playing = true

	c.wg.Add(1)
	go c.run(ctx)
}

// Pause stops playback at the next tick boundary. Pausing a paused cursor is
// a no-op.
func (c *Cursor) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
}

func (c *Cursor) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		cadence := time.Duration(float64(c.baseCadence) / c.multiplier)
		c.mu.Unlock()

		timer := time.NewTimer(cadence)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.mu.Lock()
			if !c.playing {
				c.mu.Unlock()
				return
			}
			if !c.advanceLocked() {
				// Terminal index: auto-transition to paused.
				c.playing = false
				c.cancel = nil
				c.mu.Unlock()
				c.logger.Debug().Msg("Replay cursor reached terminal index")
				return
			}
			c.mu.Unlock()
		}
	}
}

// Steps exposes the indices visited during playback. The channel is buffered
// and lossy for slow consumers.
func (c *Cursor) Steps() <-chan int {
	return c.steps
}

// Index returns the current index.
func (c *Cursor) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Playing reports whether the cursor is currently advancing on a timer.
func (c *Cursor) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Len returns the number of samples in the window.
func (c *Cursor) Len() int {
	return len(c.samples)
}

// Current returns the sample under the index, or false for an empty window.
func (c *Cursor) Current() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return Sample{}, false
	}
	return c.samples[c.index], true
}

// Window returns the time window this cursor was built from.
func (c *Cursor) Window() (time.Time, time.Time) {
	return c.windowStart, c.windowEnd
}
