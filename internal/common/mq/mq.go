package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	VHost    string
	Exchange string
	Prefetch int
}

// Client owns one connection with separate publish and consume channels.
// The publish channel runs in confirm mode.
type Client struct {
	conn  *amqp.Connection
	pubCh *amqp.Channel
	subCh *amqp.Channel

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // serialises Publish so confirms pair up with publishes
}

func Dial(cfg Config) (*Client, error) {
	vhost := cfg.VHost
	if vhost == "" || vhost == "/" {
		vhost = ""
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Pass, cfg.Host, cfg.Port, vhost)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := pubCh.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	subCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{
		conn:  conn,
		pubCh: pubCh,
		subCh: subCh,
		acks:  pubCh.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.subCh != nil {
		_ = c.subCh.Close()
	}
	if c.pubCh != nil {
		_ = c.pubCh.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// NotifyClose reports the connection going away.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Client) DeclareTopic(exchange string) error {
	if err := c.pubCh.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", exchange, err)
	}
	return nil
}

// Publish sends a persistent JSON message and waits for the broker confirm.
func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pubCh.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}); err != nil {
		return err
	}

	select {
	case conf, ok := <-c.acks:
		if !ok {
			return errors.New("confirm channel closed")
		}
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeExclusive declares a server-named, exclusive, auto-delete queue bound
// to exchange with the given routing keys and starts consuming it.
func (c *Client) ConsumeExclusive(exchange string, keys []string, consumer string, prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.subCh.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	q, err := c.subCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	for _, k := range keys {
		if err := c.subCh.QueueBind(q.Name, k, exchange, false, nil); err != nil {
			return nil, fmt.Errorf("queue bind %s: %w", k, err)
		}
	}
	if err := c.subCh.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return c.subCh.Consume(q.Name, consumer, false, true, false, false, nil)
}

// Cancel stops a consumer started with ConsumeExclusive.
func (c *Client) Cancel(consumer string) error { return c.subCh.Cancel(consumer, false) }
