// Package bus optionally bridges internal/events.Bus across process
// boundaries so multiple coordinator replicas share escalation and
// scheduler-wake events, per spec.md §9's event-channel design note and
// SPEC_FULL.md §5's "optional NATS-backed bridge" expansion. A
// single-process deployment never constructs a Client.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with the publish/subscribe surface the
// bridge needs, mirroring the teacher's reconnect-handling client.
type Client struct {
	conn *nats.Conn
}

// Connect dials url with indefinite reconnect, matching the teacher's
// NewClient reconnect policy.
func Connect(url string) (*Client, error) {
	opts := []nats.Option{
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection without draining pending messages.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishJSON marshals v and publishes it to subject.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal for %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeJSON subscribes to subject and unmarshals each message into a
// freshly-allocated T, invoking handle. A message that fails to unmarshal
// is dropped silently: handle is not called for it and it is not retried,
// matching C3's "never retry non-idempotent mutations" boundary applied to
// inbound fan-out.
func SubscribeJSON[T any](c *Client, subject string, handle func(T)) (*nats.Subscription, error) {
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		handle(payload)
	})
}
