package sensor

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// knotsToMetersPerSecond converts NMEA speed-over-ground to m/s.
const knotsToMetersPerSecond = 0.514444

// NMEASource reads NMEA sentences from a GPS device on a serial port and
// pushes one fix per valid RMC sentence. GGA sentences contribute altitude
// and HDOP, which stands in for horizontal accuracy the way the GPS
// hardware reports it.
type NMEASource struct {
	port     string
	baudRate int
	logger   zerolog.Logger

	fixes chan models.Fix
	errs  chan Error

	mu     sync.Mutex
	ser    *serial.Port
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Last seen GGA context, owned by the reader goroutine.
	lastAltitude float64
	lastHDOP     float64
	haveGGA      bool
}

// NewNMEASource creates a source for the GPS device on the given port.
func NewNMEASource(port string, baudRate int, logger zerolog.Logger) *NMEASource {
	return &NMEASource{
		port:     port,
		baudRate: baudRate,
		logger:   logger,
		fixes:    make(chan models.Fix, 16),
		errs:     make(chan Error, 16),
	}
}

// Start opens the serial port and begins pushing fixes.
func (n *NMEASource) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx != nil {
		return errors.New("nmea source is already running")
	}

	ser, err := serial.OpenPort(&serial.Config{Name: n.port, Baud: n.baudRate})
	if err != nil {
		return err
	}

	n.ser = ser
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.wg.Add(1)
	go n.readLoop(n.ctx, ser)

	n.logger.Info().Str("port", n.port).Int("baud_rate", n.baudRate).Msg("NMEA source started")
	return nil
}

// Stop closes the serial port and ends the reader goroutine. Stopping a
// stopped source is a no-op.
func (n *NMEASource) Stop() error {
	n.mu.Lock()
	if n.ctx == nil {
		n.mu.Unlock()
		return nil
	}
	n.cancel()
	n.ser.Close() // unblocks the scanner
	n.ctx = nil
	n.cancel = nil
	n.ser = nil
	n.mu.Unlock()

	n.wg.Wait()
	n.logger.Info().Msg("NMEA source stopped")
	return nil
}

// Fixes delivers parsed position fixes.
func (n *NMEASource) Fixes() <-chan models.Fix {
	return n.fixes
}

// Errors delivers classified sensor errors.
func (n *NMEASource) Errors() <-chan Error {
	return n.errs
}

func (n *NMEASource) readLoop(ctx context.Context, ser *serial.Port) {
	defer n.wg.Done()

	scanner := bufio.NewScanner(ser)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			n.emitError(ctx, Error{Kind: ErrorTransient, Cause: err})
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			n.lastAltitude = s.Altitude
			n.lastHDOP = s.HDOP
			n.haveGGA = true
		case nmea.RMC:
			if s.Validity != nmea.ValidRMC {
				n.emitError(ctx, Error{Kind: ErrorTransient, Cause: errors.New("position unknown")})
				continue
			}
			fix := n.fixFromRMC(s)
			select {
			case n.fixes <- fix:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		n.emitError(ctx, Error{Kind: ErrorOther, Cause: err})
	}
}

func (n *NMEASource) fixFromRMC(s nmea.RMC) models.Fix {
	fix := models.Fix{
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		Speed:              s.Speed * knotsToMetersPerSecond,
		Course:             s.Course,
		HorizontalAccuracy: -1,
		VerticalAccuracy:   -1,
		CourseAccuracy:     -1,
		SpeedAccuracy:      -1,
		Timestamp:          rmcTimestamp(s),
	}
	if n.haveGGA {
		fix.Altitude = n.lastAltitude
		fix.HorizontalAccuracy = n.lastHDOP
	}
	return fix
}

func (n *NMEASource) emitError(ctx context.Context, e Error) {
	select {
	case n.errs <- e:
	case <-ctx.Done():
	default:
	}
}

// rmcTimestamp combines the RMC date and time fields into a UTC instant,
// falling back to the wall clock when the device has no date lock yet.
func rmcTimestamp(s nmea.RMC) time.Time {
	if !s.Date.Valid || !s.Time.Valid {
		return time.Now().UTC()
	}
	return time.Date(
		2000+s.Date.YY,
		time.Month(s.Date.MM),
		s.Date.DD,
		s.Time.Hour,
		s.Time.Minute,
		s.Time.Second,
		s.Time.Millisecond*int(time.Millisecond),
		time.UTC,
	)
}
