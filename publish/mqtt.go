// Package publish delivers session messages to outside consumers.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"wandcaster/session"
)

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
	// PublishTimeout bounds the wait for the broker to take a message.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultMQTTConfig targets a local broker. An empty Broker disables MQTT.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		ClientID:       "wandcaster",
		TopicPrefix:    "wandcaster",
		Retain:         true,
		PublishTimeout: 2 * time.Second,
	}
}

// MQTT publishes each message as JSON on <prefix>/<kind>. Trace points are
// too frequent for the broker and are skipped.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	log    logrus.FieldLogger
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	log.WithField("broker", cfg.Broker).Info("MQTT: connected")
	return newMQTT(client, cfg, log), nil
}

func newMQTT(client mqtt.Client, cfg MQTTConfig, log logrus.FieldLogger) *MQTT {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultMQTTConfig().PublishTimeout
	}
	return &MQTT{client: client, cfg: cfg, log: log.WithField("component", "mqtt")}
}

// Topic returns the topic for kind.
func (m *MQTT) Topic(kind session.Kind) string {
	prefix := strings.TrimSuffix(m.cfg.TopicPrefix, "/")
	if prefix == "" {
		return string(kind)
	}
	return prefix + "/" + string(kind)
}

// Publish sends msg without waiting for the broker.
func (m *MQTT) Publish(msg session.Message) {
	if msg.Kind == session.KindTrace {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		m.log.WithError(err).Warn("MQTT: marshal failed")
		return
	}
	topic := m.Topic(msg.Kind)
	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	go func() {
		if !token.WaitTimeout(m.cfg.PublishTimeout) {
			m.log.WithField("topic", topic).Warn("MQTT: publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			m.log.WithError(err).WithField("topic", topic).Warn("MQTT: publish failed")
		}
	}()
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
