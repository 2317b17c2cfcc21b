// CoverLink - MQTT Client
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Message is an MQTT message delivered to a handler.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// MessageHandler receives messages for a subscription.
type MessageHandler func(msg Message)

// Broker is the part of an MQTT connection the services depend on.
type Broker interface {
	Subscribe(filter string, handler MessageHandler) error
	Publish(topic string, payload []byte, retained bool) error
}

// MQTTStats tracks MQTT client statistics
type MQTTStats struct {
	MessagesPublished  uint64            `json:"messages_published"`
	MessagesReceived   uint64            `json:"messages_received"`
	ConnectionAttempts uint64            `json:"connection_attempts"`
	ConnectionFailures uint64            `json:"connection_failures"`
	LastConnected      time.Time         `json:"last_connected"`
	TopicStats         map[string]uint64 `json:"topic_stats"`
	ErrorCount         uint64            `json:"error_count"`
}

// MQTTClient wraps a paho client, keeping subscriptions alive across reconnects.
type MQTTClient struct {
	config        MQTTConfig
	clientID      string
	client        mqtt.Client
	mutex         sync.RWMutex
	connected     bool
	subscriptions map[string]MessageHandler
	stats         MQTTStats
	logger        *zap.Logger
	errors        *ErrorHandler
}

// NewMQTTClient creates a client. role is used to derive a client ID when the
// configuration does not set one.
func NewMQTTClient(config MQTTConfig, role string, logger *zap.Logger) *MQTTClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("coverlink-%s-%s", role, randomSuffix())
	}

	return &MQTTClient{
		config:        config,
		clientID:      clientID,
		subscriptions: make(map[string]MessageHandler),
		stats: MQTTStats{
			TopicStats: make(map[string]uint64),
		},
		logger: logger.With(zap.String("client_id", clientID)),
		errors: NewErrorHandler("mqtt", logger),
	}
}

// ClientID returns the MQTT client identifier.
func (mc *MQTTClient) ClientID() string {
	return mc.clientID
}

// StatusTopic is where the client announces online/offline (last will).
func (mc *MQTTClient) StatusTopic() string {
	return fmt.Sprintf("coverlink/%s/status", mc.clientID)
}

// Connect establishes connection to the MQTT broker
func (mc *MQTTClient) Connect(ctx context.Context) error {
	mc.mutex.Lock()
	mc.stats.ConnectionAttempts++

	opts := mqtt.NewClientOptions()
	opts.AddBroker(mc.config.BrokerURL())
	opts.SetClientID(mc.clientID)
	opts.SetKeepAlive(mc.config.KeepAlive)
	opts.SetConnectTimeout(mc.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// handlers publish and wait for acks, which deadlocks the ordered router
	opts.SetOrderMatters(false)

	if mc.config.Username != "" {
		opts.SetUsername(mc.config.Username)
		opts.SetPassword(mc.config.Password)
	}

	// Set connection callbacks
	opts.SetOnConnectHandler(mc.onConnect)
	opts.SetConnectionLostHandler(mc.onConnectionLost)
	opts.SetReconnectingHandler(mc.onReconnecting)

	opts.SetWill(mc.StatusTopic(), "offline", mc.config.QoS, true)

	mc.client = mqtt.NewClient(opts)
	client := mc.client
	mc.mutex.Unlock()

	mc.logger.Info("connecting to broker",
		zap.String("broker", mc.config.BrokerURL()),
		zap.String("user", mc.config.Username),
		zap.Int("passlen", len(mc.config.Password)))

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		mc.recordConnectFailure()
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	if err := token.Error(); err != nil {
		mc.recordConnectFailure()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return nil
}

func (mc *MQTTClient) recordConnectFailure() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.stats.ConnectionFailures++
}

// onConnect runs on every (re)connect; clean sessions drop subscriptions, so
// they are restored here.
func (mc *MQTTClient) onConnect(client mqtt.Client) {
	mc.mutex.Lock()
	mc.connected = true
	mc.stats.LastConnected = time.Now()
	subs := make(map[string]MessageHandler, len(mc.subscriptions))
	for filter, handler := range mc.subscriptions {
		subs[filter] = handler
	}
	mc.mutex.Unlock()

	mc.logger.Info("connected to broker")
	client.Publish(mc.StatusTopic(), mc.config.QoS, true, "online")

	for filter, handler := range subs {
		mc.errors.LogError("resubscribe "+filter, mc.subscribe(client, filter, handler))
	}
}

// onConnectionLost callback when MQTT connection lost
func (mc *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	mc.mutex.Lock()
	mc.connected = false
	mc.stats.ErrorCount++
	mc.mutex.Unlock()

	mc.logger.Warn("connection lost", zap.Error(err))
}

// onReconnecting callback when MQTT client is reconnecting
func (mc *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	mc.logger.Info("reconnecting to broker")
}

// Subscribe registers handler for filter. The subscription is restored after
// every reconnect.
func (mc *MQTTClient) Subscribe(filter string, handler MessageHandler) error {
	mc.mutex.Lock()
	mc.subscriptions[filter] = handler
	client := mc.client
	connected := mc.connected
	mc.mutex.Unlock()

	if client == nil || !connected {
		return nil
	}
	return mc.subscribe(client, filter, handler)
}

func (mc *MQTTClient) subscribe(client mqtt.Client, filter string, handler MessageHandler) error {
	token := client.Subscribe(filter, mc.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		mc.mutex.Lock()
		mc.stats.MessagesReceived++
		mc.mutex.Unlock()

		handler(Message{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			Retained: msg.Retained(),
		})
	})
	if !token.WaitTimeout(mc.config.ConnectTimeout) {
		return fmt.Errorf("subscribe %s: %w", filter, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	mc.logger.Info("subscribed", zap.String("topic", filter))
	return nil
}

// Publish publishes payload to topic and waits for the broker to accept it.
func (mc *MQTTClient) Publish(topic string, payload []byte, retained bool) error {
	mc.mutex.RLock()
	client := mc.client
	connected := mc.connected
	mc.mutex.RUnlock()

	if client == nil || !connected {
		return ErrNotConnected
	}

	token := client.Publish(topic, mc.config.QoS, retained, payload)
	if !token.WaitTimeout(mc.config.ConnectTimeout) {
		mc.recordPublishError()
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		mc.recordPublishError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	mc.mutex.Lock()
	mc.stats.MessagesPublished++
	mc.stats.TopicStats[topic]++
	mc.mutex.Unlock()
	return nil
}

func (mc *MQTTClient) recordPublishError() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.stats.ErrorCount++
}

// Disconnect closes MQTT connection
func (mc *MQTTClient) Disconnect() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if mc.client != nil && mc.connected {
		// Publish offline status
		mc.client.Publish(mc.StatusTopic(), mc.config.QoS, true, "offline").WaitTimeout(time.Second)
		mc.client.Disconnect(250)
		mc.connected = false
		mc.logger.Info("disconnected from broker")
	}
}

// IsConnected returns current connection status
func (mc *MQTTClient) IsConnected() bool {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	return mc.connected
}

// GetStats returns MQTT client statistics
func (mc *MQTTClient) GetStats() MQTTStats {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	// Create copy to avoid race conditions
	stats := mc.stats
	stats.TopicStats = make(map[string]uint64)
	for k, v := range mc.stats.TopicStats {
		stats.TopicStats[k] = v
	}

	return stats
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b)
}
