package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Client publishes requests to a worker queue and waits for the correlated reply on a
// private, server-named reply queue.
type Client struct {
	ch       Channel
	queue    string
	replyTo  string
	mu       sync.Mutex
	pending  map[string]chan amqp.Delivery
	closed   chan struct{}
	priority uint8
}

// NewClient declares the reply queue and starts routing replies to callers.
func NewClient(ch Channel, queue string) (*Client, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}
	replies, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	c := &Client{
		ch:       ch,
		queue:    queue,
		replyTo:  q.Name,
		pending:  make(map[string]chan amqp.Delivery),
		closed:   make(chan struct{}),
		priority: 1,
	}
	go c.route(replies)
	return c, nil
}

func (c *Client) route(replies <-chan amqp.Delivery) {
	defer close(c.closed)
	for d := range replies {
		c.mu.Lock()
		waiter, ok := c.pending[d.CorrelationId]
		delete(c.pending, d.CorrelationId)
		c.mu.Unlock()
		if ok {
			waiter <- d
		}
	}
}

// Call publishes req and decodes the reply result into out (which may be nil).
func (c *Client) Call(ctx context.Context, req Request, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	cid := uuid.NewString()
	waiter := make(chan amqp.Delivery, 1)
	c.mu.Lock()
	c.pending[cid] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, cid)
		c.mu.Unlock()
	}()

	if err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: cid,
		ReplyTo:       c.replyTo,
		Body:          body,
		Priority:      c.priority,
		Timestamp:     time.Now(),
	}); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("reply queue closed")
	case d := <-waiter:
		var reply Reply
		if err := json.Unmarshal(d.Body, &reply); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
		if !reply.OK {
			if reply.Error == nil {
				return &ReplyError{Code: "internal_error", Message: "request failed"}
			}
			return reply.Error
		}
		if out == nil || len(reply.Result) == 0 {
			return nil
		}
		return json.Unmarshal(reply.Result, out)
	}
}
