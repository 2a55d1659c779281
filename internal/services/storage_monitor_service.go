package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/disk"
)

// StorageMonitorService periodically samples disk usage of the volume
// holding the history database and logs a warning when it crosses the
// configured threshold. History writes are the only thing on this device
// that grows unbounded, so the volume filling up is the most likely cause
// of future storage failures.
type StorageMonitorService struct {
	databasePath  string
	checkInterval time.Duration
	warnPercent   float64
	logger        zerolog.Logger

	// usage is swappable for tests.
	usage func(path string) (*disk.UsageStat, error)

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStorageMonitorService validates the thresholds and returns the monitor.
func NewStorageMonitorService(databasePath string, checkInterval time.Duration, warnPercent float64, logger zerolog.Logger) (*StorageMonitorService, error) {
	if checkInterval <= 0 {
		return nil, errors.New("disk check interval must be positive")
	}
	if warnPercent <= 0 || warnPercent > 100 {
		return nil, errors.New("disk usage warn percent must be in (0, 100]")
	}
	return &StorageMonitorService{
		databasePath:  databasePath,
		checkInterval: checkInterval,
		warnPercent:   warnPercent,
		logger:        logger,
		usage:         disk.Usage,
	}, nil
}

// Start launches the sampling loop.
func (s *StorageMonitorService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return errors.New("storage monitor is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run(s.ctx)

	s.logger.Info().
		Str("path", s.databasePath).
		Dur("interval", s.checkInterval).
		Msg("StorageMonitorService started")
	return nil
}

// Stop ends the sampling loop. Stopping a stopped monitor is a no-op.
func (s *StorageMonitorService) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("StorageMonitorService stopped")
	return nil
}

func (s *StorageMonitorService) run(ctx context.Context) {
	defer s.wg.Done()

	// Sample once at startup so a nearly full disk is visible immediately.
	s.check()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *StorageMonitorService) check() {
	stat, err := s.usage(filepath.Dir(s.databasePath))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sample disk usage")
		return
	}

	if stat.UsedPercent >= s.warnPercent {
		s.logger.Warn().
			Float64("used_percent", stat.UsedPercent).
			Uint64("free_bytes", stat.Free).
			Msg("History volume is nearly full, retention purges may not keep up")
		return
	}

	s.logger.Debug().
		Float64("used_percent", stat.UsedPercent).
		Msg("Disk usage sampled")
}
