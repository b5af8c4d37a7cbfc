package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antonholmquist/jason"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQoS            = 1
)

// Camera gateways publish a flat JSON object with target_type, target_id,
// location and timestamp. Some wrap it in a "detection" envelope. The
// timestamp is RFC 3339 text or Unix epoch seconds or milliseconds.
const detectionEnvelope = "detection"

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// MQTTSource buffers detections received on an MQTT topic. Next never
// blocks; when the buffer is full new messages are dropped.
type MQTTSource struct {
	cfg     conf.MQTTSettings
	client  mqtt.Client
	events  chan DetectionEvent
	log     logger.Logger
	dropped atomic.Uint64
	invalid atomic.Uint64
	now     func() time.Time
}

// NewMQTTSource creates an unconnected source. Call Start to subscribe.
func NewMQTTSource(cfg conf.MQTTSettings, log logger.Logger) *MQTTSource {
	if log == nil {
		log = logger.NewNop()
	}
	size := cfg.Buffer
	if size <= 0 {
		size = 256
	}
	return &MQTTSource{
		cfg:    cfg,
		events: make(chan DetectionEvent, size),
		log:    log.With(logger.String("component", "mqtt_source")),
		now:    time.Now,
	}
}

// Start connects to the broker and subscribes to the detection topic.
func (m *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// Resubscribe after automatic reconnects.
		if err := m.subscribe(c); err != nil {
			m.log.Error("failed to subscribe to detection topic", logger.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("mqtt connection lost", logger.Error(err))
	})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", m.cfg.Broker, err)
	}
	m.log.Info("mqtt detection feed connected",
		logger.String("broker", m.cfg.Broker),
		logger.String("topic", m.cfg.Topic))
	return nil
}

func (m *MQTTSource) subscribe(c mqtt.Client) error {
	token := c.Subscribe(m.cfg.Topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handleMessage(msg.Payload())
	})
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("timed out subscribing to %s", m.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", m.cfg.Topic, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (m *MQTTSource) Stop() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// Next returns one buffered event, if any.
func (m *MQTTSource) Next(ctx context.Context) (DetectionEvent, bool, error) {
	select {
	case <-ctx.Done():
		return DetectionEvent{}, false, ctx.Err()
	case ev := <-m.events:
		return ev, true, nil
	default:
		return DetectionEvent{}, false, nil
	}
}

// Dropped reports messages discarded because the buffer was full.
func (m *MQTTSource) Dropped() uint64 {
	return m.dropped.Load()
}

// Invalid reports messages that could not be decoded.
func (m *MQTTSource) Invalid() uint64 {
	return m.invalid.Load()
}

func (m *MQTTSource) handleMessage(payload []byte) {
	event, err := m.decode(payload)
	if err != nil {
		m.invalid.Add(1)
		m.log.Warn("discarding malformed detection message", logger.Error(err))
		return
	}
	select {
	case m.events <- event:
	default:
		m.dropped.Add(1)
		m.log.Warn("detection buffer full, dropping event",
			logger.String("target_type", string(event.TargetType)),
			logger.String("location", event.Location))
	}
}

func (m *MQTTSource) decode(payload []byte) (DetectionEvent, error) {
	obj, err := jason.NewObjectFromBytes(payload)
	if err != nil {
		return DetectionEvent{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if inner, err := obj.GetObject(detectionEnvelope); err == nil {
		obj = inner
	}

	rawType, err := optionalString(obj, "target_type")
	if err != nil {
		return DetectionEvent{}, err
	}
	targetType := entities.TargetType(strings.ToLower(strings.TrimSpace(rawType)))
	if !targetType.Valid() {
		return DetectionEvent{}, fmt.Errorf("unknown target_type %q", rawType)
	}
	targetID, err := optionalString(obj, "target_id")
	if err != nil {
		return DetectionEvent{}, err
	}
	location, err := optionalString(obj, "location")
	if err != nil {
		return DetectionEvent{}, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return DetectionEvent{}, errors.New("location is required")
	}
	ts, err := payloadTime(obj)
	if err != nil {
		return DetectionEvent{}, err
	}
	if ts.IsZero() {
		ts = m.now()
	}
	return DetectionEvent{
		TargetType: targetType,
		TargetID:   strings.TrimSpace(targetID),
		Location:   location,
		Timestamp:  ts.UTC(),
		Source:     SourceMQTT,
	}, nil
}

// optionalString returns "" for a missing or null key and fails when the
// key holds anything other than a string.
func optionalString(obj *jason.Object, key string) (string, error) {
	v, err := obj.GetValue(key)
	if err != nil || v.Null() == nil {
		return "", nil
	}
	s, err := v.String()
	if err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// payloadTime returns the zero time when the message carries no timestamp.
func payloadTime(obj *jason.Object) (time.Time, error) {
	v, err := obj.GetValue("timestamp")
	if err != nil || v.Null() == nil {
		return time.Time{}, nil
	}
	if s, err := v.String(); err == nil {
		if strings.TrimSpace(s) == "" {
			return time.Time{}, nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return ts, nil
	}
	n, err := v.Int64()
	if err != nil || n <= 0 {
		return time.Time{}, errors.New("timestamp must be RFC 3339 text or a positive epoch number")
	}
	if n >= epochMillisThreshold {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}
