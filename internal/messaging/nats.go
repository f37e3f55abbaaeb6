// Package messaging provides a NATS client wrapper for pub/sub messaging
// between guardian services. The gateway publishes inbound message
// envelopes; the moderation service subscribes to them and publishes
// per-chat enforcement events for anything that wants an action feed.
//
// NATS preserves publish order per connection and subject, which is what
// carries the per-(chat,user) ordering guarantee from the gateway through
// to the engine: one gateway connection, one inbound subject.
package messaging

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across guardian services.
const (
	SubjectInbound = "guardian.inbound"
	SubjectAction  = "guardian.action" // + .<chat_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "guardian",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishInbound publishes an inbound message envelope from the gateway.
func (c *NATSClient) PublishInbound(data []byte) error {
	return c.Publish(SubjectInbound, data)
}

// SubscribeInbound subscribes to inbound message envelopes from gateways.
func (c *NATSClient) SubscribeInbound(handler func(data []byte)) error {
	return c.Subscribe(SubjectInbound, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishActionTaken publishes an enforcement event on the chat's action
// subject.
func (c *NATSClient) PublishActionTaken(chatID int64, data []byte) error {
	return c.Publish(SubjectAction+"."+strconv.FormatInt(chatID, 10), data)
}

// SubscribeActions subscribes to one chat's enforcement events.
func (c *NATSClient) SubscribeActions(chatID int64, handler func(data []byte)) error {
	return c.Subscribe(SubjectAction+"."+strconv.FormatInt(chatID, 10), func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeActions unsubscribes from a chat's enforcement events.
func (c *NATSClient) UnsubscribeActions(chatID int64) error {
	return c.unsubscribe(SubjectAction + "." + strconv.FormatInt(chatID, 10))
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
