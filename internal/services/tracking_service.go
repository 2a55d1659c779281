package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/admission"
	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/benmeehan/tracklog-agent/internal/sensor"
	"github.com/benmeehan/tracklog-agent/internal/utils"
	"github.com/benmeehan/tracklog-agent/internal/velocity"
	"github.com/rs/zerolog"
)

// TrackingState names the controller states.
type TrackingState int

const (
	StateStopped TrackingState = iota
	StateAwaitingAuthorization
	StateTracking
)

// String returns the state name for logging.
func (s TrackingState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// HistoryWriter is the slice of the history store the tracking controller
// needs.
type HistoryWriter interface {
	Insert(rec models.HistoryRecord) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
	DeleteAll() (int64, error)
}

// Notifier surfaces conditions the presentation collaborator must show the
// user. The controller never swallows them.
type Notifier interface {
	PermissionRequired(status models.Authorization)
	StorageFailure(err error)
}

// LogNotifier is the default Notifier for headless deployments; it logs.
type LogNotifier struct {
	Logger zerolog.Logger
}

// PermissionRequired logs that tracking needs location permission.
func (n LogNotifier) PermissionRequired(status models.Authorization) {
	n.Logger.Warn().Str("authorization", status.String()).Msg("Location permission required to track")
}

// StorageFailure logs a lost history write.
func (n LogNotifier) StorageFailure(err error) {
	n.Logger.Error().Err(err).Msg("History write failed, fix dropped")
}

// ProbabilitySampler returns a sampler that fires with probability p.
func ProbabilitySampler(p float64) func() bool {
	return func() bool {
		return rand.Float64() < p
	}
}

// EveryNSampler returns a deterministic sampler that fires on every nth
// call, for reproducible amortization in tests.
func EveryNSampler(n int) func() bool {
	var count int
	return func() bool {
		count++
		return count%n == 0
	}
}

// TrackingConfig carries the admission-independent tracking knobs.
type TrackingConfig struct {
	RetentionDays          int
	PurgeSampleProbability float64
}

// TrackingService owns the tracking state machine. It wires sensor fixes
// through the velocity estimator and the admission policy into the history
// store, and is the only component that mutates tracking state.
type TrackingService struct {
	source     sensor.Source
	authorizer sensor.Authorizer
	store      HistoryWriter
	estimator  *velocity.Estimator
	policy     *admission.Policy
	notifier   Notifier
	pool       *utils.WorkerPool
	logger     zerolog.Logger

	retention    time.Duration
	purgeSampler func() bool
	now          func() time.Time

	mu              sync.RWMutex
	state           TrackingState
	authorization   models.Authorization
	lastFix         *models.Fix
	lastSaved       *models.Fix
	lastSavedAt     time.Time
	currentBand     models.SpeedBand
	currentInterval time.Duration

	droppedWrites atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTrackingService validates the configuration and wires the controller.
// A nil notifier falls back to logging.
func NewTrackingService(source sensor.Source, authorizer sensor.Authorizer, store HistoryWriter,
	estimator *velocity.Estimator, policy *admission.Policy, notifier Notifier,
	pool *utils.WorkerPool, cfg TrackingConfig, logger zerolog.Logger) (*TrackingService, error) {

	if cfg.RetentionDays <= 0 {
		return nil, errors.New("retention days must be positive")
	}
	if cfg.PurgeSampleProbability < 0 || cfg.PurgeSampleProbability > 1 {
		return nil, errors.New("purge sample probability must be in [0, 1]")
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	return &TrackingService{
		source:        source,
		authorizer:    authorizer,
		store:         store,
		estimator:     estimator,
		policy:        policy,
		notifier:      notifier,
		pool:          pool,
		logger:        logger,
		retention:     time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		purgeSampler:  ProbabilitySampler(cfg.PurgeSampleProbability),
		now:           time.Now,
		state:         StateStopped,
		authorization: models.AuthorizationNotDetermined,
	}, nil
}

// Start launches the event loop and begins tracking (or waits for
// authorization).
func (t *TrackingService) Start() error {
	t.mu.Lock()
	if t.ctx != nil {
		t.mu.Unlock()
		t.logger.Warn().Msg("TrackingService is already running")
		return errors.New("tracking service is already running")
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	ctx := t.ctx
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(ctx)

	if err := t.StartTracking(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to start tracking")
		return err
	}

	t.logger.Info().Msg("TrackingService started")
	return nil
}

// Stop ends the event loop and the sensor subscription. Stopping a stopped
// service is a no-op, not an error.
func (t *TrackingService) Stop() error {
	t.mu.Lock()
	if t.ctx == nil {
		t.mu.Unlock()
		t.logger.Warn().Msg("TrackingService is not running")
		return nil
	}
	cancel := t.cancel
	t.ctx = nil
	t.cancel = nil
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
	t.StopTracking()

	t.logger.Info().Msg("TrackingService stopped")
	return nil
}

// StartTracking drives the Stopped state into Tracking, or into
// AwaitingAuthorization with an upgrade request when the platform has not
// granted Always yet.
func (t *TrackingService) StartTracking() error {
	t.mu.Lock()
	if t.state != StateStopped {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cannot start tracking from state %s", state)
	}
	auth := t.authorizer.Status()
	t.authorization = auth
	t.mu.Unlock()

	if auth == models.AuthorizationAlways {
		return t.beginTracking()
	}

	t.setState(StateAwaitingAuthorization)
	t.authorizer.Request(models.AuthorizationAlways)
	return nil
}

// StopTracking ends the sensor subscription and returns to Stopped.
// Stopping twice is a no-op.
func (t *TrackingService) StopTracking() {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if state == StateStopped {
		return
	}
	if state == StateTracking {
		if err := t.source.Stop(); err != nil {
			t.logger.Error().Err(err).Msg("Failed to stop sensor source")
		}
	}
	t.setState(StateStopped)
}

// RequestAuthorizationUpgrade asks the platform collaborator for Always
// authorization.
func (t *TrackingService) RequestAuthorizationUpgrade() {
	t.authorizer.Request(models.AuthorizationAlways)
}

// State returns the current controller state.
func (t *TrackingService) State() TrackingState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Snapshot returns a copy of the tracking state. Callers never receive
// references into live mutable state.
func (t *TrackingService) Snapshot() models.TrackingSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := models.TrackingSnapshot{
		IsTracking:       t.state == StateTracking,
		Authorization:    t.authorization,
		LastSavedAt:      t.lastSavedAt,
		CurrentSpeedBand: t.currentBand,
		CurrentInterval:  t.currentInterval,
		DroppedWrites:    t.droppedWrites.Load(),
	}
	if t.lastFix != nil {
		fix := *t.lastFix
		snap.LastFix = &fix
	}
	if t.lastSaved != nil {
		fix := *t.lastSaved
		snap.LastSavedFix = &fix
	}
	return snap
}

// DeleteAllHistory clears the entire history store.
func (t *TrackingService) DeleteAllHistory() (int64, error) {
	return t.store.DeleteAll()
}

// PurgeOlderThan removes history older than the given number of days.
func (t *TrackingService) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		return 0, errors.New("purge age must be positive")
	}
	return t.store.DeleteOlderThan(t.now().AddDate(0, 0, -days))
}

func (t *TrackingService) run(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case auth := <-t.authorizer.Changes():
			t.handleAuthorization(auth)
		case fix := <-t.source.Fixes():
			t.handleFix(fix)
		case serr := <-t.source.Errors():
			t.handleSensorError(serr)
		}
	}
}

func (t *TrackingService) handleAuthorization(auth models.Authorization) {
	t.mu.Lock()
	t.authorization = auth
	state := t.state
	t.mu.Unlock()

	t.logger.Info().Str("authorization", auth.String()).Str("state", state.String()).Msg("Authorization changed")

	switch state {
	case StateAwaitingAuthorization:
		switch auth {
		case models.AuthorizationAlways:
			if err := t.beginTracking(); err != nil {
				t.logger.Error().Err(err).Msg("Failed to begin tracking after authorization")
			}
		case models.AuthorizationWhenInUse:
			// Foreground-only permission is not enough; ask for an upgrade
			// and keep waiting.
			t.authorizer.Request(models.AuthorizationAlways)
		case models.AuthorizationDenied, models.AuthorizationRestricted:
			t.setState(StateStopped)
			t.notifier.PermissionRequired(auth)
		}
	case StateTracking:
		if auth == models.AuthorizationDenied || auth == models.AuthorizationRestricted {
			if err := t.source.Stop(); err != nil {
				t.logger.Error().Err(err).Msg("Failed to stop sensor source")
			}
			t.setState(StateStopped)
			t.notifier.PermissionRequired(auth)
		}
	}
}

func (t *TrackingService) handleFix(fix models.Fix) {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	cp := fix
	t.lastFix = &cp
	lastSaved := t.lastSaved
	lastSavedAt := t.lastSavedAt
	t.mu.Unlock()

	band := t.estimator.Update(fix)
	interval := t.estimator.Interval(band)
	now := t.now()

	if !t.policy.ShouldPersist(fix, interval, lastSaved, lastSavedAt, now) {
		t.logger.Debug().
			Str("band", band.String()).
			Dur("interval", interval).
			Float64("horizontal_accuracy", fix.HorizontalAccuracy).
			Msg("Fix rejected")
		return
	}

	rec := models.NewHistoryRecord(fix, now)
	if err := t.store.Insert(rec); err != nil {
		// A failed insert loses only this fix; tracking continues.
		t.droppedWrites.Add(1)
		t.logger.Error().Err(err).Msg("Failed to insert history record")
		t.notifier.StorageFailure(err)
		return
	}

	t.mu.Lock()
	saved := fix
	t.lastSaved = &saved
	t.lastSavedAt = now
	t.currentBand = band
	t.currentInterval = interval
	t.mu.Unlock()

	t.logger.Debug().
		Str("record_id", rec.ID).
		Str("band", band.String()).
		Dur("interval", interval).
		Msg("Fix persisted")

	t.maybePurge(now)
}

// maybePurge amortizes retention cleanup over accepted inserts instead of
// running it every time.
func (t *TrackingService) maybePurge(now time.Time) {
	if !t.purgeSampler() {
		return
	}

	cutoff := now.Add(-t.retention)
	submitted := t.pool.TrySubmit(func() {
		deleted, err := t.store.DeleteOlderThan(cutoff)
		if err != nil {
			t.logger.Error().Err(err).Msg("Retention purge failed")
			return
		}
		if deleted > 0 {
			t.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Retention purge completed")
		}
	})
	if !submitted {
		t.logger.Warn().Msg("Purge skipped, worker pool saturated")
	}
}

func (t *TrackingService) handleSensorError(serr sensor.Error) {
	switch serr.Kind {
	case sensor.ErrorTransient:
		t.logger.Debug().Err(serr.Cause).Msg("Transient sensor error, tracking continues")
	case sensor.ErrorPermissionRevoked:
		t.logger.Warn().Err(serr.Cause).Msg("Location permission revoked mid-session")
		t.mu.Lock()
		t.authorization = models.AuthorizationDenied
		t.mu.Unlock()
		t.StopTracking()
		t.notifier.PermissionRequired(models.AuthorizationDenied)
	default:
		t.logger.Warn().Err(serr.Cause).Msg("Sensor error, tracking continues")
	}
}

func (t *TrackingService) beginTracking() error {
	if err := t.source.Start(); err != nil {
		t.setState(StateStopped)
		return fmt.Errorf("failed to start sensor source: %w", err)
	}
	t.setState(StateTracking)
	t.logger.Info().Msg("Tracking started")
	return nil
}

func (t *TrackingService) setState(state TrackingState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}
