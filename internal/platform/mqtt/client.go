// Package mqtt exports transmission events to an MQTT broker.
package mqtt

import (
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/platform/config"
	"matrix-server-go/internal/platform/logging"
)

// Publisher owns one paho client. All methods are safe for concurrent use.
type Publisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

// Connect dials the broker and announces the server as online.
func Connect(cfg config.MQTTConfig, logger *logging.Logger) (*Publisher, error) {
	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.InfoTag("MQTT", "connected to %s", cfg.Broker)
		c.Publish(statusTopic(cfg.TopicPrefix), byte(cfg.QoS), true, statusPayload(cfg.ClientID, "online"))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.WarnTag("MQTT", "connection lost: %v", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient wraps an already constructed client.
func NewWithClient(client pahomqtt.Client, cfg config.MQTTConfig, logger *logging.Logger) *Publisher {
	return &Publisher{client: client, cfg: cfg, logger: logger}
}

// Attach exports every finished transmission published on bus.
func (p *Publisher) Attach(bus *eventbus.AsyncEventBus) error {
	return bus.Subscribe(eventbus.EventTransmissionCompleted, p.HandleTransmission)
}

// HandleTransmission publishes one event; failures are logged, not returned.
func (p *Publisher) HandleTransmission(event eventbus.TransmissionEvent) {
	payload, err := sonic.Marshal(event)
	if err != nil {
		p.logger.ErrorTag("MQTT", "encode transmission %s: %v", event.ID, err)
		return
	}
	topic := TransmissionTopic(p.cfg.TopicPrefix, event.Success)
	if err := p.Publish(topic, payload, byte(p.cfg.QoS), false); err != nil {
		p.logger.WarnTag("MQTT", "publish %s: %v", topic, err)
	}
}

// Publish sends payload and waits for the broker acknowledgement.
func (p *Publisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// IsConnected reports the live connection state.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	return !closed && p.client.IsConnected()
}

// Close announces a graceful shutdown and disconnects.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if p.client.IsConnected() {
		token := p.client.Publish(statusTopic(p.cfg.TopicPrefix), byte(p.cfg.QoS), true, statusPayload(p.cfg.ClientID, "offline"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
