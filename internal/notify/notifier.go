package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
)

// Default timeouts for broker operations.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds

	maxReconnectInterval = 2 * time.Minute
)

// Sentinel errors for notification operations.
var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("notify: connection failed")

	// ErrNotConnected indicates the broker connection is down; the
	// notification was not sent.
	ErrNotConnected = errors.New("notify: not connected")

	// ErrPublishFailed indicates the broker did not accept the message.
	ErrPublishFailed = errors.New("notify: publish failed")
)

// Logger is the minimal logging interface the notifier needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier publishes chamber events to an MQTT broker: backend alerts and
// recoveries, actuator state changes, and an online/offline status with a
// Last Will so subscribers can tell a crash from a clean shutdown.
//
// The notifier is best-effort. A down broker degrades to log lines; it
// never blocks the control or delivery paths.
type Notifier struct {
	client pahomqtt.Client
	topics Topics
	qos    byte
	logger Logger

	connected bool
	connMu    sync.RWMutex
}

// Connect establishes the broker connection and publishes online status.
// Reconnection after a drop is automatic with exponential backoff.
func Connect(cfg config.MQTTConfig, chamberID string, logger Logger) (*Notifier, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	n := &Notifier{
		topics: Topics{Prefix: cfg.TopicPrefix, ChamberID: chamberID},
		qos:    byte(cfg.QoS), //nolint:gosec // validated to 0..2 by config
		logger: logger,
	}

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetUsername(cfg.Auth.Username).
		SetPassword(cfg.Auth.Password).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetWill(n.topics.Status(), string(statusPayload(chamberID, "offline-unexpected")), n.qos, true).
		SetOnConnectHandler(func(pahomqtt.Client) { n.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { n.handleDisconnect(err) })

	n.client = pahomqtt.NewClient(opts)
	token := n.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	n.connMu.Lock()
	n.connected = true
	n.connMu.Unlock()

	return n, nil
}

func (n *Notifier) handleConnect() {
	n.connMu.Lock()
	n.connected = true
	n.connMu.Unlock()

	n.logger.Info("mqtt connected")
	if err := n.publish(n.topics.Status(), statusPayload(n.topics.ChamberID, "online"), true); err != nil {
		n.logger.Warn("publishing online status failed", "error", err)
	}
}

func (n *Notifier) handleDisconnect(err error) {
	n.connMu.Lock()
	n.connected = false
	n.connMu.Unlock()

	n.logger.Warn("mqtt connection lost", "error", err)
}

// IsConnected returns the last known connection state.
func (n *Notifier) IsConnected() bool {
	n.connMu.RLock()
	defer n.connMu.RUnlock()
	return n.connected && n.client.IsConnected()
}

// Alert publishes a backend-unreachable alert.
func (n *Notifier) Alert(failures, queuedReadings int) {
	n.send(n.topics.Alerts(), alertPayload(n.topics.ChamberID, failures, queuedReadings), false)
}

// Recovery publishes a backend-recovered event.
func (n *Notifier) Recovery() {
	n.send(n.topics.Alerts(), recoveryPayload(n.topics.ChamberID), false)
}

// StateChange publishes an actuator transition, retained so late
// subscribers see the current state.
func (n *Notifier) StateChange(actuator string, on bool) {
	n.send(n.topics.State(actuator), statePayload(n.topics.ChamberID, actuator, on), true)
}

// send is the best-effort publish path: failures become log lines.
func (n *Notifier) send(topic string, payload []byte, retained bool) {
	if err := n.publish(topic, payload, retained); err != nil {
		n.logger.Warn("notification not delivered", "topic", topic, "error", err)
		return
	}
	n.logger.Debug("notification published", "topic", topic)
}

func (n *Notifier) publish(topic string, payload []byte, retained bool) error {
	if !n.IsConnected() {
		return ErrNotConnected
	}

	token := n.client.Publish(topic, n.qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes a clean offline status and disconnects.
func (n *Notifier) Close() error {
	if n.client == nil {
		return nil
	}

	if n.IsConnected() {
		token := n.client.Publish(n.topics.Status(), n.qos, true,
			statusPayload(n.topics.ChamberID, "offline"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	n.client.Disconnect(defaultDisconnectQuiesce)

	n.connMu.Lock()
	n.connected = false
	n.connMu.Unlock()

	return nil
}
