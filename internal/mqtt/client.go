// Package mqtt provides a generic MQTT client for publish/subscribe
// communication over the broker used by the ingest loop and the virtual
// node agent.
//
// The package wraps paho.mqtt.golang with connection management, automatic
// reconnection handling, and subscription tracking.
//
// # Usage
//
//	client, err := mqtt.NewClient(mqtt.Config{Broker: "tcp://localhost:1883"})
//	if err != nil { ... }
//	if err := client.Connect(); err != nil { ... }
//
//	client.Subscribe("msh/US/#", func(topic string, payload []byte) {
//	    fmt.Printf("received: %s\n", payload)
//	})
//
//	client.Publish("msh/US/2/e/LongFast/!deadbeef", payload)
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/austinmesh/bridger/pkg/log"
)

// Config describes how to reach and authenticate against the broker.
type Config struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Username string
	Password string

	// ConnectMinBackoff/ConnectMaxBackoff bound the exponential backoff used
	// by Connect's initial-connect retries (min 1s, max 60s, up to 10 attempts).
	ConnectMinBackoff time.Duration
	ConnectMaxBackoff time.Duration
	ConnectMaxRetries int

	// ReconnectMinBackoff/ReconnectMaxBackoff configure paho's own
	// post-connect reconnect policy (min 5s, max 120s).
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration
}

// MessageHandler is a callback invoked for every message delivered on a
// subscribed topic filter.
type MessageHandler func(topic string, payload []byte)

// Client wraps a paho MQTT connection with subscription bookkeeping.
type Client struct {
	cfg  Config
	opts *paho.ClientOptions

	mu            sync.Mutex
	conn          paho.Client
	subscriptions []string
}

// NewClient builds a Client from cfg but does not connect.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	if cfg.ConnectMinBackoff == 0 {
		cfg.ConnectMinBackoff = time.Second
	}
	if cfg.ConnectMaxBackoff == 0 {
		cfg.ConnectMaxBackoff = 60 * time.Second
	}
	if cfg.ConnectMaxRetries == 0 {
		cfg.ConnectMaxRetries = 10
	}
	if cfg.ReconnectMinBackoff == 0 {
		cfg.ReconnectMinBackoff = 5 * time.Second
	}
	if cfg.ReconnectMaxBackoff == 0 {
		cfg.ReconnectMaxBackoff = 120 * time.Second
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false) // initial connect retry is handled explicitly by Connect
	opts.SetMaxReconnectInterval(cfg.ReconnectMaxBackoff)
	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Infof("mqtt: connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.Warnf("mqtt: connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(c paho.Client, o *paho.ClientOptions) {
		log.Infof("mqtt: reconnecting to %s", cfg.Broker)
	})

	return &Client{cfg: cfg, opts: opts}, nil
}

// Connect dials the broker, retrying the initial handshake with exponential
// backoff (min 1s, max 60s, up to 10 attempts). Once connected,
// disconnects are handled by paho's own auto-reconnect.
func (c *Client) Connect() error {
	c.mu.Lock()
	conn := paho.NewClient(c.opts)
	c.conn = conn
	c.mu.Unlock()

	backoff := c.cfg.ConnectMinBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectMaxRetries; attempt++ {
		token := conn.Connect()
		if token.WaitTimeout(30 * time.Second) {
			if token.Error() == nil {
				return nil
			}
			lastErr = token.Error()
		} else {
			lastErr = fmt.Errorf("connect timed out")
		}

		log.Warnf("mqtt: connect attempt %d/%d failed: %v", attempt, c.cfg.ConnectMaxRetries, lastErr)
		if attempt == c.cfg.ConnectMaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.cfg.ConnectMaxBackoff {
			backoff = c.cfg.ConnectMaxBackoff
		}
	}
	return fmt.Errorf("mqtt: failed to connect to %s after %d attempts: %w", c.cfg.Broker, c.cfg.ConnectMaxRetries, lastErr)
}

// Subscribe registers handler for messages matching filter (may contain
// MQTT wildcards).
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mqtt: not connected")
	}

	token := conn.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: subscribe to %q timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe to %q failed: %w", filter, err)
	}

	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, filter)
	c.mu.Unlock()
	log.Infof("mqtt: subscribed to %q", filter)
	return nil
}

// Publish sends payload to topic at QoS 0.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mqtt: not connected")
	}

	token := conn.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: publish to %q timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %q failed: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Disconnect unsubscribes everything and closes the connection, waiting up
// to quiesce for in-flight work to settle.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if len(c.subscriptions) > 0 {
		if token := c.conn.Unsubscribe(c.subscriptions...); token.WaitTimeout(5 * time.Second) {
			if err := token.Error(); err != nil {
				log.Warnf("mqtt: unsubscribe failed: %v", err)
			}
		}
		c.subscriptions = nil
	}
	c.conn.Disconnect(uint(quiesce.Milliseconds()))
	log.Info("mqtt: disconnected")
}
