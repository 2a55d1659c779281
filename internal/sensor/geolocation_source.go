package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// GeolocationSource polls the Google Maps Geolocation API using nearby WiFi
// access points and cell towers. It is the fallback for hardware without a
// GPS device. Speed, course, and vertical accuracy are unknown for this
// source and reported negative.
type GeolocationSource struct {
	client       *maps.Client
	pollInterval time.Duration
	modemIndex   int
	logger       zerolog.Logger

	fixes chan models.Fix
	errs  chan Error

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGeolocationSource creates a polling source backed by the Maps API.
func NewGeolocationSource(apiKey string, pollInterval time.Duration, modemIndex int, logger zerolog.Logger) (*GeolocationSource, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &GeolocationSource{
		client:       client,
		pollInterval: pollInterval,
		modemIndex:   modemIndex,
		logger:       logger,
		fixes:        make(chan models.Fix, 16),
		errs:         make(chan Error, 16),
	}, nil
}

// Start begins the polling loop.
func (g *GeolocationSource) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ctx != nil {
		return errors.New("geolocation source is already running")
	}

	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.wg.Add(1)
	go g.pollLoop(g.ctx)

	g.logger.Info().Dur("poll_interval", g.pollInterval).Msg("Geolocation source started")
	return nil
}

// Stop ends the polling loop. Stopping a stopped source is a no-op.
func (g *GeolocationSource) Stop() error {
	g.mu.Lock()
	if g.ctx == nil {
		g.mu.Unlock()
		return nil
	}
	g.cancel()
	g.ctx = nil
	g.cancel = nil
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info().Msg("Geolocation source stopped")
	return nil
}

// Fixes delivers polled position fixes.
func (g *GeolocationSource) Fixes() <-chan models.Fix {
	return g.fixes
}

// Errors delivers classified sensor errors.
func (g *GeolocationSource) Errors() <-chan Error {
	return g.errs
}

func (g *GeolocationSource) pollLoop(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fix, err := g.locate(ctx)
			if err != nil {
				// A failed scan or API call is momentary; the next poll
				// may succeed.
				select {
				case g.errs <- Error{Kind: ErrorTransient, Cause: err}:
				default:
				}
				continue
			}
			select {
			case g.fixes <- fix:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (g *GeolocationSource) locate(ctx context.Context) (models.Fix, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	wifiAPs, err := getWiFiAccessPoints(reqCtx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("WiFi scan unavailable, relying on IP and cell data")
	} else {
		req.WiFiAccessPoints = wifiAPs
	}

	cellTowers, err := getCellTowers(reqCtx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Cell tower scan unavailable")
	} else {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(reqCtx, req)
	if err != nil {
		return models.Fix{}, err
	}

	return models.Fix{
		Latitude:           resp.Location.Lat,
		Longitude:          resp.Location.Lng,
		HorizontalAccuracy: resp.Accuracy,
		VerticalAccuracy:   -1,
		Course:             -1,
		CourseAccuracy:     -1,
		Speed:              -1,
		SpeedAccuracy:      -1,
		Timestamp:          time.Now().UTC(),
	}, nil
}
