// Package mqtt exposes snapshot entities to a home-automation broker and
// takes refresh presses and location reports back from it.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
)

// Options configures the broker connection.
type Options struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	// TopicPrefix roots the state, attribute and command topics.
	TopicPrefix string
	// DiscoveryPrefix roots the retained discovery configs.
	DiscoveryPrefix string
}

// MessageHandler receives the topic and payload of an incoming message.
type MessageHandler func(topic string, payload []byte)

// broker is the subset of the client the entity publisher and the inbound
// routers need.
type broker interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
}

// Client wraps a paho client with auto-reconnect. Subscriptions are replayed
// after every reconnect since sessions are clean.
type Client struct {
	client    paho.Client
	logger    *slog.Logger
	status    string
	mu        sync.RWMutex
	connected bool
	subs      map[string]MessageHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	c := &Client{
		logger: logger,
		status: StatusTopic(opts.TopicPrefix),
		subs:   make(map[string]MessageHandler),
		stopCh: make(chan struct{}),
	}

	po := paho.NewClientOptions()
	po.AddBroker(opts.Broker)
	po.SetClientID(opts.ClientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	// Session settings
	po.SetCleanSession(true)

	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(5 * time.Second)
	po.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	po.SetKeepAlive(30 * time.Second)
	po.SetPingTimeout(10 * time.Second)

	// Last will marks every entity unavailable if the poller dies.
	po.SetWill(c.status, "offline", 1, true)

	po.SetOnConnectHandler(func(pc paho.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker)
		pc.Publish(c.status, 1, true, "online")
		c.resubscribe()
	})

	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = paho.NewClient(po)
	return c
}

// Connect waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish sends a QoS 1 message.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. When offline the subscription is
// only remembered and made on the next connect.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	c.logger.Info("subscribed to mqtt topic", "topic", topic)
	return nil
}

// resubscribe runs on paho's connect callback, so it must not wait on
// tokens there.
func (c *Client) resubscribe() {
	c.mu.RLock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.mu.RUnlock()

	go func() {
		for topic, handler := range subs {
			if err := c.subscribe(topic, handler); err != nil {
				c.logger.Error("mqtt resubscribe failed", "topic", topic, "error", err)
			}
		}
	}()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection. Safe to call
// more than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.IsConnected() {
		c.client.Publish(c.status, 1, true, "offline").WaitTimeout(publishTimeout)
	}
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
