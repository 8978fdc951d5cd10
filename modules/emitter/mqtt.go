// Package emitter announces saved tickets on an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

// ErrNotConnected is returned by publishes while the broker is unreachable.
var ErrNotConnected = errors.New("emitter: mqtt not connected")

// Config contains broker and topic settings.
type Config struct {
	Broker    string // host:port or a full tcp:// / ssl:// URL
	ClientID  string
	Username  string
	Password  string
	StationID string

	TicketsTopic string
	HealthTopic  string
	QoS          byte

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns topics rooted at "tickets/<station>".
func DefaultConfig(stationID string) Config {
	return Config{
		Broker:         "localhost:1883",
		ClientID:       "ticketcap-" + stationID,
		StationID:      stationID,
		TicketsTopic:   fmt.Sprintf("tickets/%s/captured", stationID),
		HealthTopic:    fmt.Sprintf("tickets/%s/health", stationID),
		QoS:            1,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// TicketEvent is the JSON payload published for every saved ticket.
type TicketEvent struct {
	Type      string    `json:"type"`
	StationID string    `json:"station_id"`
	CaptureID string    `json:"capture_id"`
	Code      string    `json:"code"`
	Dir       string    `json:"dir"`
	Front     string    `json:"front,omitempty"`
	Back      string    `json:"back,omitempty"`
	ROI       string    `json:"roi,omitempty"`
	Metadata  string    `json:"metadata"`
	SavedAt   time.Time `json:"saved_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTTEmitter publishes ticket events. Safe for concurrent use.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	// publish is the transport; tests replace it.
	publish func(topic string, qos byte, payload []byte) error

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// New creates an emitter. Call Connect before publishing.
func New(cfg Config) *MQTTEmitter {
	e := &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
	e.publish = e.publishMQTT
	return e
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection. The client reconnects on its
// own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	if e.cfg.Username != "" {
		opts.SetUsername(e.cfg.Username)
		opts.SetPassword(e.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	timeout := time.NewTimer(e.cfg.ConnectTimeout)
	defer timeout.Stop()
	select {
	case <-token.Done():
	case <-timeout.C:
		return fmt.Errorf("emitter: mqtt connection timeout after %v", e.cfg.ConnectTimeout)
	case <-ctx.Done():
		return fmt.Errorf("emitter: connect cancelled: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) publishMQTT(topic string, qos byte, payload []byte) error {
	if e.client == nil || !e.isConnected() {
		return ErrNotConnected
	}
	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(e.cfg.PublishTimeout) {
		return fmt.Errorf("emitter: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: publish failed on %s: %w", topic, err)
	}
	return nil
}

// TicketSaved publishes a TicketEvent for r.
func (e *MQTTEmitter) TicketSaved(ctx context.Context, r storage.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := TicketEvent{
		Type:      "ticket_captured",
		StationID: e.cfg.StationID,
		CaptureID: r.CaptureID,
		Code:      r.Code,
		Dir:       r.Dir,
		Front:     r.Front,
		Back:      r.Back,
		ROI:       r.ROI,
		Metadata:  r.Metadata,
		SavedAt:   r.SavedAt,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: marshal ticket event: %w", err)
	}
	return e.send(e.cfg.TicketsTopic, payload)
}

// PublishHealth publishes v as JSON on the health topic.
func (e *MQTTEmitter) PublishHealth(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: marshal health: %w", err)
	}
	return e.send(e.cfg.HealthTopic, payload)
}

func (e *MQTTEmitter) send(topic string, payload []byte) error {
	if err := e.publish(topic, e.cfg.QoS, payload); err != nil {
		e.countError()
		return err
	}
	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: message published", "topic", topic, "qos", e.cfg.QoS, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns a snapshot of the counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
