// Package notify tells the physical gate relay about each persisted verdict
// over MQTT.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/config"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/pkg/dto"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// RelayMessage is the payload the gate controller acts on.
type RelayMessage struct {
	EventID    string `json:"event_id"`
	WorkerID   string `json:"worker_id"`
	EmployeeID string `json:"employee_id"`
	Overall    string `json:"overall"`
	// Open is false only for a violation.
	Open      bool   `json:"open"`
	Timestamp string `json:"timestamp"`
}

func NewRelayMessage(rec dto.EventRecord) RelayMessage {
	return RelayMessage{
		EventID:    rec.ID.String(),
		WorkerID:   rec.WorkerID.String(),
		EmployeeID: rec.EmployeeID,
		Overall:    rec.Overall,
		Open:       rec.Overall != "violation",
		Timestamp:  rec.Timestamp,
	}
}

// Topic is <prefix>/<cctv id or "default">/verdict.
func Topic(prefix string, rec dto.EventRecord) string {
	gate := "default"
	if rec.CCTVID != nil {
		gate = rec.CCTVID.String()
	}
	return fmt.Sprintf("%s/%s/verdict", strings.TrimSuffix(prefix, "/"), gate)
}

type MQTTNotifier struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
}

// NewMQTTNotifier connects to the broker. Callers skip it entirely when no
// broker is configured.
func NewMQTTNotifier(cfg config.MQTTConfig) (*MQTTNotifier, error) {
	n := &MQTTNotifier{cfg: cfg}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		n.setConnected(true)
		slog.Info("mqtt connection established", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	n.client = mqtt.NewClient(opts)
	token := n.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	n.setConnected(true)
	return n, nil
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

// NotifyVerdict publishes one verdict with QoS 1.
func (n *MQTTNotifier) NotifyVerdict(rec dto.EventRecord) error {
	if !n.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(NewRelayMessage(rec))
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}

	topic := Topic(n.cfg.TopicPrefix, rec)
	token := n.client.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	slog.Debug("verdict published", "topic", topic, "overall", rec.Overall)
	return nil
}

func (n *MQTTNotifier) Close() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
	}
	n.setConnected(false)
}
