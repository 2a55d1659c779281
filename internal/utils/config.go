package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/tracklog-agent/pkg/file"
)

// supportedConfigVersions is the config schema range this build accepts.
const supportedConfigVersions = ">= 1.0.0, < 2.0.0"

// Config represents the structure of the configuration file.
type Config struct {
	// Version is the config schema version; incompatible files are
	// rejected at startup.
	Version string `yaml:"version"`

	Logging struct {
		Level string `yaml:"level"` // zerolog level: trace..panic
	} `yaml:"logging"`

	Identity struct {
		TrackerFile string `yaml:"tracker_file"` // Path to the tracker identity file
	} `yaml:"identity"`

	Sensor struct {
		Source string `yaml:"source"` // Fix source: nmea, mqtt, or geolocation

		NMEA struct {
			Port     string `yaml:"port"`      // UNIX port where the GPS device is mounted
			BaudRate int    `yaml:"baud_rate"` // Baud rate for the serial communication
		} `yaml:"nmea"`

		MQTT struct {
			Broker        string `yaml:"broker"`         // MQTT broker address
			ClientID      string `yaml:"client_id"`      // MQTT client ID
			Topic         string `yaml:"topic"`          // Topic carrying fix payloads
			QOS           int    `yaml:"qos"`            // MQTT QoS level for fix messages
			CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate; empty for plaintext
		} `yaml:"mqtt"`

		Geolocation struct {
			MapsAPIKey   string        `yaml:"maps_api_key"`  // Google maps API key
			PollInterval time.Duration `yaml:"poll_interval"` // Interval between geolocation polls
			ModemIndex   int           `yaml:"modem_index"`   // mmcli modem index for cell scans
		} `yaml:"geolocation"`
	} `yaml:"sensor"`

	Tracking struct {
		AccuracyCeilingMeters   float64         `yaml:"accuracy_ceiling_m"`        // Reject fixes less accurate than this
		DistanceThresholdMeters float64         `yaml:"distance_threshold_m"`      // Reject fixes closer than this to the last saved one
		SpeedBandThresholds     []float64       `yaml:"speed_band_thresholds"`     // m/s, descending: driving..stationary
		SpeedBandIntervals      []time.Duration `yaml:"speed_band_intervals"`      // Logging intervals, same band order
		RetentionDays           int             `yaml:"retention_days"`            // Purge records older than this
		PurgeSampleProbability  float64         `yaml:"purge_sample_probability"`  // Chance an accepted insert triggers a purge
	} `yaml:"tracking"`

	History struct {
		DatabaseFile         string        `yaml:"database_file"`           // Path to the sqlite history database
		PageSize             int           `yaml:"page_size"`               // Records per pagination page
		RangeFetchCap        int           `yaml:"range_fetch_cap"`         // Hard cap on range query results
		DiskCheckInterval    time.Duration `yaml:"disk_check_interval"`     // How often to sample disk usage
		DiskUsageWarnPercent float64       `yaml:"disk_usage_warn_percent"` // Warn when the DB volume is fuller than this
	} `yaml:"history"`

	Replay struct {
		BaseCadence time.Duration `yaml:"base_cadence"` // Advance cadence at 1x playback speed
	} `yaml:"replay"`
}

// LoadConfig loads the YAML configuration from the specified file, applies
// defaults, and validates it. Invalid configuration is fatal to startup.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Sensor.Source == "" {
		c.Sensor.Source = "nmea"
	}
	if c.Sensor.Geolocation.PollInterval == 0 {
		c.Sensor.Geolocation.PollInterval = 30 * time.Second
	}
	if c.Tracking.AccuracyCeilingMeters == 0 {
		c.Tracking.AccuracyCeilingMeters = 100
	}
	if c.Tracking.DistanceThresholdMeters == 0 {
		c.Tracking.DistanceThresholdMeters = 100
	}
	if len(c.Tracking.SpeedBandThresholds) == 0 {
		c.Tracking.SpeedBandThresholds = []float64{2.5, 0.83, 0.5, 0.083, 0}
	}
	if len(c.Tracking.SpeedBandIntervals) == 0 {
		c.Tracking.SpeedBandIntervals = []time.Duration{
			5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second, 600 * time.Second,
		}
	}
	if c.Tracking.RetentionDays == 0 {
		c.Tracking.RetentionDays = 30
	}
	if c.Tracking.PurgeSampleProbability == 0 {
		c.Tracking.PurgeSampleProbability = 0.10
	}
	if c.History.DatabaseFile == "" {
		c.History.DatabaseFile = "data/history.db"
	}
	if c.History.PageSize == 0 {
		c.History.PageSize = 50
	}
	if c.History.RangeFetchCap == 0 {
		c.History.RangeFetchCap = 500
	}
	if c.History.DiskCheckInterval == 0 {
		c.History.DiskCheckInterval = 10 * time.Minute
	}
	if c.History.DiskUsageWarnPercent == 0 {
		c.History.DiskUsageWarnPercent = 90
	}
	if c.Replay.BaseCadence == 0 {
		c.Replay.BaseCadence = 550 * time.Millisecond
	}
}

// Validate rejects configuration this build cannot run with.
func (c *Config) Validate() error {
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("config version %q is not valid semver: %w", c.Version, err)
	}
	constraint, err := semver.NewConstraint(supportedConfigVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("config version %s is outside the supported range %s", version, supportedConfigVersions)
	}

	switch c.Sensor.Source {
	case "nmea", "mqtt", "geolocation":
	default:
		return fmt.Errorf("unknown sensor source %q", c.Sensor.Source)
	}

	if c.Tracking.AccuracyCeilingMeters <= 0 {
		return errors.New("accuracy ceiling must be positive")
	}
	if c.Tracking.DistanceThresholdMeters < 0 {
		return errors.New("distance threshold must be non-negative")
	}
	if len(c.Tracking.SpeedBandThresholds) != 5 {
		return errors.New("speed band thresholds must list exactly 5 values")
	}
	if len(c.Tracking.SpeedBandIntervals) != 5 {
		return errors.New("speed band intervals must list exactly 5 values")
	}
	if c.Tracking.RetentionDays <= 0 {
		return errors.New("retention days must be positive")
	}
	if c.Tracking.PurgeSampleProbability < 0 || c.Tracking.PurgeSampleProbability > 1 {
		return errors.New("purge sample probability must be in [0, 1]")
	}
	if c.History.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	if c.History.RangeFetchCap <= 0 {
		return errors.New("range fetch cap must be positive")
	}
	if c.History.DiskUsageWarnPercent <= 0 || c.History.DiskUsageWarnPercent > 100 {
		return errors.New("disk usage warn percent must be in (0, 100]")
	}
	if c.Replay.BaseCadence <= 0 {
		return errors.New("replay base cadence must be positive")
	}

	return nil
}
