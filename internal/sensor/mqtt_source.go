package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/tracklog-agent/internal/models"
	"github.com/benmeehan/tracklog-agent/pkg/mqtt"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTSource receives fixes pushed as JSON payloads on a broker topic. This
// is the message-passing boundary for platforms that publish positioning
// events on a local bus instead of exposing a device directly.
type MQTTSource struct {
	client mqtt.MQTTClient
	topic  string
	qos    byte
	logger zerolog.Logger

	fixes chan models.Fix
	errs  chan Error

	mu         sync.Mutex
	subscribed bool
}

// NewMQTTSource creates a source subscribed to the given fix topic.
func NewMQTTSource(client mqtt.MQTTClient, topic string, qos byte, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
		fixes:  make(chan models.Fix, 64),
		errs:   make(chan Error, 16),
	}
}

// Start subscribes to the fix topic.
func (m *MQTTSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribed {
		return errors.New("mqtt source is already running")
	}

	token := m.client.Subscribe(m.topic, m.qos, m.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to fix topic: %w", err)
	}

	m.subscribed = true
	m.logger.Info().Str("topic", m.topic).Msg("MQTT fix source started")
	return nil
}

// Stop unsubscribes from the fix topic. Stopping a stopped source is a
// no-op.
func (m *MQTTSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.subscribed {
		return nil
	}

	token := m.client.Unsubscribe(m.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe from fix topic: %w", err)
	}

	m.subscribed = false
	m.logger.Info().Str("topic", m.topic).Msg("MQTT fix source stopped")
	return nil
}

// Fixes delivers decoded position fixes.
func (m *MQTTSource) Fixes() <-chan models.Fix {
	return m.fixes
}

// Errors delivers classified sensor errors.
func (m *MQTTSource) Errors() <-chan Error {
	return m.errs
}

// handleMessage runs on the paho callback goroutine; it must never block the
// broker, so a saturated consumer drops fixes with a warning.
func (m *MQTTSource) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	var fix models.Fix
	if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
		select {
		case m.errs <- Error{Kind: ErrorTransient, Cause: fmt.Errorf("malformed fix payload: %w", err)}:
		default:
		}
		return
	}

	select {
	case m.fixes <- fix:
	default:
		m.logger.Warn().Str("topic", m.topic).Msg("Fix channel saturated, dropping fix")
	}
}
