// Package mq carries thumbnail jobs from the API server to cmd/worker over
// RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"Go_Drop/config"
)

// Jobs are routed to QueueJobs. A job that fails is acked and a
// ThumbnailFailure is parked in QueueFailed; nothing is redelivered.
const (
	Exchange    = "godrop.thumbnails"
	QueueJobs   = "godrop.thumbnails.jobs"
	QueueFailed = "godrop.thumbnails.failed"

	routeJob    = "job"
	routeFailed = "failed"
)

var topology = []struct {
	queue string
	route string
}{
	{QueueJobs, routeJob},
	{QueueFailed, routeFailed},
}

// ErrInvalidJob marks a job body the worker cannot act on.
var ErrInvalidJob = errors.New("invalid thumbnail job")

// ThumbnailJob asks the worker to render the thumbnails of a stored file.
type ThumbnailJob struct {
	FileID   uint64    `json:"file_id"`
	Filename string    `json:"filename"`
	MimeType string    `json:"mimetype"`
	QueuedAt time.Time `json:"queued_at"`
}

// ThumbnailFailure is what the worker parks for a job it could not render.
type ThumbnailFailure struct {
	FileID   uint64    `json:"file_id"`
	Filename string    `json:"filename"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// DecodeThumbnailJob parses a delivery body.
func DecodeThumbnailJob(body []byte) (ThumbnailJob, error) {
	var job ThumbnailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ThumbnailJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.Filename == "" {
		return ThumbnailJob{}, fmt.Errorf("%w: file %d without filename", ErrInvalidJob, job.FileID)
	}
	return job, nil
}

// Client is one connection with one channel. Publishing is serialized
// because amqp channels are not safe for concurrent publishes.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// Dial connects to RABBITMQ_URL and declares the thumbnail topology.
func Dial() (*Client, error) {
	conn, err := amqp.Dial(config.AppConfig.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := &Client{conn: conn, ch: ch}
	if err := c.declare(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) declare() error {
	if err := c.ch.ExchangeDeclare(Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	for _, b := range topology {
		if _, err := c.ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := c.ch.QueueBind(b.queue, b.route, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

func (c *Client) alive() bool {
	return !c.conn.IsClosed() && !c.ch.IsClosed()
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	_ = c.ch.Close()
	_ = c.conn.Close()
}

// PublishJob enqueues a thumbnail job.
func (c *Client) PublishJob(ctx context.Context, job ThumbnailJob) error {
	return c.publishJSON(ctx, routeJob, job)
}

// ParkFailure records a job that could not be rendered.
func (c *Client) ParkFailure(ctx context.Context, failure ThumbnailFailure) error {
	return c.publishJSON(ctx, routeFailed, failure)
}

func (c *Client) publishJSON(ctx context.Context, route string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, Exchange, route, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ConsumeJobs starts a manual-ack consumer on QueueJobs with at most
// prefetch unacked deliveries.
func (c *Client) ConsumeJobs(prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(max(prefetch, 1), 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return c.ch.Consume(QueueJobs, "", false, false, false, false, nil)
}

var (
	publisherMu sync.Mutex
	publisher   *Client
)

// Publisher returns the process-wide publishing client, dialing again
// when the previous connection has dropped.
func Publisher() (*Client, error) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	if publisher != nil && publisher.alive() {
		return publisher, nil
	}
	publisher.Close()
	publisher = nil

	c, err := Dial()
	if err != nil {
		return nil, err
	}
	publisher = c
	return c, nil
}

// ClosePublisher closes the publishing client, if any.
func ClosePublisher() {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	publisher.Close()
	publisher = nil
}
