// Package notify publishes capture run summaries to an MQTT broker.
package notify

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

	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

const publishTimeout = 5 * time.Second

var ErrPublishFailed = errors.New("mqtt publish failed")

// Publisher is the part of mqtt.Client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

var _ Publisher = mqtt.Client(nil)

// Summary is the message published for each capture run.
type Summary struct {
	RunID             string    `json:"run_id"`
	IncidentID        int64     `json:"incident_id"`
	IncidentType      string    `json:"incident_type,omitempty"`
	Roadway           string    `json:"roadway,omitempty"`
	County            string    `json:"county,omitempty"`
	CamerasAttempted  int       `json:"cameras_attempted"`
	CamerasSuccessful int       `json:"cameras_successful"`
	CamerasFailed     int       `json:"cameras_failed"`
	SegmentsCaptured  int       `json:"segments_captured"`
	TotalBytes        int64     `json:"total_bytes"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Segments          []string  `json:"segments,omitempty"`
}

func NewSummary(inc models.Incident, res models.CaptureResult) Summary {
	s := Summary{
		RunID:             res.RunID,
		IncidentID:        inc.ID,
		IncidentType:      inc.Type,
		Roadway:           inc.Roadway,
		County:            inc.County,
		CamerasAttempted:  res.CamerasAttempted,
		CamerasSuccessful: res.CamerasSuccessful,
		CamerasFailed:     res.CamerasFailed,
		SegmentsCaptured:  res.SegmentsCaptured,
		TotalBytes:        res.TotalBytes,
		StartedAt:         res.StartedAt,
		FinishedAt:        res.FinishedAt,
	}
	for _, seg := range res.Segments() {
		s.Segments = append(s.Segments, seg.URL)
	}
	return s
}

// MQTTNotifier publishes one JSON Summary per capture run to
// <topic>/<incident id>.
type MQTTNotifier struct {
	pub   Publisher
	topic string
	qos   byte

	mu        sync.Mutex
	published uint64
	errors    uint64
}

func NewMQTTNotifier(pub Publisher, topic string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, topic: strings.TrimRight(topic, "/"), qos: qos}
}

func (n *MQTTNotifier) Notify(ctx context.Context, inc models.Incident, res models.CaptureResult) error {
	payload, err := json.Marshal(NewSummary(inc, res))
	if err != nil {
		return fmt.Errorf("failed to marshal capture summary: %w", err)
	}
	topic := fmt.Sprintf("%s/%d", n.topic, inc.ID)

	token := n.pub.Publish(topic, n.qos, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		n.fail()
		return fmt.Errorf("%w: timeout on %s", ErrPublishFailed, topic)
	case <-ctx.Done():
		n.fail()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		n.fail()
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()
	slog.Debug("capture summary published", "topic", topic, "size", len(payload))
	return nil
}

func (n *MQTTNotifier) fail() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// Stats returns the number of successful and failed publishes.
func (n *MQTTNotifier) Stats() (published, failed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published, n.errors
}

// Connect dials the configured broker. The client reconnects on its own after a
// lost connection.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
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
		slog.Info("mqtt connection established", "broker", broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	c := mqtt.NewClient(opts)
	slog.Info("connecting to mqtt broker", "broker", broker)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return c, nil
}
