package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/tracklog-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1.0.0"
identity:
  tracker_file: data/tracker.json
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "nmea", config.Sensor.Source)
	assert.Equal(t, float64(100), config.Tracking.AccuracyCeilingMeters)
	assert.Equal(t, float64(100), config.Tracking.DistanceThresholdMeters)
	assert.Equal(t, []float64{2.5, 0.83, 0.5, 0.083, 0}, config.Tracking.SpeedBandThresholds)
	assert.Equal(t, 600*time.Second, config.Tracking.SpeedBandIntervals[4])
	assert.Equal(t, 30, config.Tracking.RetentionDays)
	assert.Equal(t, 0.10, config.Tracking.PurgeSampleProbability)
	assert.Equal(t, 50, config.History.PageSize)
	assert.Equal(t, 500, config.History.RangeFetchCap)
	assert.Equal(t, 550*time.Millisecond, config.Replay.BaseCadence)
}

func TestLoadConfigParsesFullFile(t *testing.T) {
	path := writeConfig(t, `
version: "1.2.0"
logging:
  level: debug
sensor:
  source: mqtt
  mqtt:
    broker: tcp://broker:1883
    client_id: tracker
    topic: sensors/fixes
    qos: 1
tracking:
  accuracy_ceiling_m: 50
  distance_threshold_m: 25
  speed_band_thresholds: [3.0, 1.0, 0.6, 0.1, 0]
  speed_band_intervals: [2s, 8s, 20s, 45s, 300s]
  retention_days: 7
  purge_sample_probability: 0.5
history:
  database_file: /var/lib/tracker/history.db
  page_size: 25
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "mqtt", config.Sensor.Source)
	assert.Equal(t, "tcp://broker:1883", config.Sensor.MQTT.Broker)
	assert.Equal(t, float64(50), config.Tracking.AccuracyCeilingMeters)
	assert.Equal(t, 2*time.Second, config.Tracking.SpeedBandIntervals[0])
	assert.Equal(t, 7, config.Tracking.RetentionDays)
	assert.Equal(t, 25, config.History.PageSize)
	// Unset fields still get defaults.
	assert.Equal(t, 500, config.History.RangeFetchCap)
}

func TestLoadConfigRejectsUnsupportedVersion(t *testing.T) {
	for _, version := range []string{"2.0.0", "0.9.0", "not-semver"} {
		path := writeConfig(t, "version: \""+version+"\"\n")
		_, err := LoadConfig(path, file.NewFileService())
		assert.Error(t, err, "version %s must be rejected", version)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown source": `
sensor:
  source: carrier-pigeon
`,
		"negative accuracy ceiling": `
tracking:
  accuracy_ceiling_m: -5
`,
		"wrong threshold count": `
tracking:
  speed_band_thresholds: [1.0, 0.5]
`,
		"purge probability above one": `
tracking:
  purge_sample_probability: 1.5
`,
		"negative page size": `
history:
  page_size: -1
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, content)
			_, err := LoadConfig(path, file.NewFileService())
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), file.NewFileService())
	assert.Error(t, err)
}
