// Package amqp publishes store lifecycle transitions to a RabbitMQ exchange
// so other processes can follow what the client is doing.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"budgetsync/internal/core"
	"budgetsync/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures   = 5
	openTimeout   = 30 * time.Second
	maxBackoff    = 30 * time.Second
	publishWait   = 5 * time.Second
	queueCapacity = 256
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	routingKey   string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time

	queue   chan core.Transition
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started atomic.Bool
}

// NewClient connects to the broker and declares a topic exchange.
func NewClient(url, exchangeName, routingKey string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.conn, c.channel = conn, channel
	return nil
}

func (c *Client) resetLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishTransition publishes t under "<routing key>.<store>".
func (c *Client) PublishTransition(ctx context.Context, t core.Transition) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish transition: %w", ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewTransitionMessage(t).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishWait)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.channel.IsClosed() {
		c.resetLocked()
		if err := c.connectLocked(); err != nil {
			c.recordFailure()
			return err
		}
	}

	key := c.routingKey + "." + t.Store
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		key,            // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.resetLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published transition",
		log.FieldStore, t.Store,
		log.FieldOperation, t.Op,
		log.FieldPhase, t.Phase.String(),
		log.FieldExchange, c.exchangeName,
		log.FieldRoutingKey, key)
	return nil
}

// Observer returns a func suitable for store Observe hooks. Transitions are
// queued and published by Start's goroutine; when the queue is full they
// are dropped.
func (c *Client) Observer() func(core.Transition) {
	c.init()
	return func(t core.Transition) {
		select {
		case c.queue <- t:
		default:
			c.logger.Warn("Transition queue full, dropping", log.FieldStore, t.Store, log.FieldOperation, t.Op)
		}
	}
}

func (c *Client) init() {
	c.once.Do(func() {
		c.queue = make(chan core.Transition, queueCapacity)
		c.stop = make(chan struct{})
		c.stopped = make(chan struct{})
	})
}

// Start drains the transition queue until ctx ends or Close is called,
// retrying connection failures with exponential backoff.
func (c *Client) Start(ctx context.Context) {
	c.init()
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				c.drain(context.Background())
				return
			case t := <-c.queue:
				c.publishWithRetry(ctx, t)
			}
		}
	}()
}

func (c *Client) drain(ctx context.Context) {
	for {
		select {
		case t := <-c.queue:
			if err := c.PublishTransition(ctx, t); err != nil {
				c.logger.Warn("Dropping transition on shutdown", log.FieldError, err)
				return
			}
		default:
			return
		}
	}
}

func (c *Client) publishWithRetry(ctx context.Context, t core.Transition) {
	for attempt := 0; ; attempt++ {
		err := c.PublishTransition(ctx, t)
		if err == nil {
			return
		}
		if errors.Is(err, ErrCircuitOpen) || !isConnectionError(err) || attempt >= 3 {
			c.logger.Warn("Failed to publish transition",
				log.FieldOperation, log.OpPublish,
				log.FieldErrorType, log.ErrorTypeNetwork,
				log.FieldStore, t.Store,
				log.FieldOperation, t.Op,
				log.FieldAttempt, attempt+1,
				log.FieldError, err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-time.After(exponentialBackoff(attempt)):
		}
	}
}

// ConsumeTransitions binds a private queue to every "<routing key>.*" key
// and passes decoded messages to handler until ctx ends. Malformed messages
// are dropped; handler errors requeue the message.
func (c *Client) ConsumeTransitions(ctx context.Context, handler func(*TransitionMessage) error) error {
	c.mu.Lock()
	if c.channel == nil || c.channel.IsClosed() {
		c.resetLocked()
		if err := c.connectLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	ch := c.channel
	c.mu.Unlock()

	q, err := ch.QueueDeclare(
		"",    // name, server-generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, c.routingKey+".*", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack (we want manual ack)
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming transitions", log.FieldExchange, c.exchangeName, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			msg, err := TransitionMessageFromJSON(delivery.Body)
			if err != nil {
				c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(msg); err != nil {
				c.logger.ErrorContext(ctx, "Failed to handle message",
					log.FieldStore, msg.Store,
					log.FieldOperation, msg.Op,
					log.FieldError, err)
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// recordFailure must be called with c.mu held.
func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Close stops the background publisher, flushing what it can, and closes
// the connection.
func (c *Client) Close() error {
	c.init()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}

	if c.started.Load() {
		select {
		case <-c.stopped:
		case <-time.After(publishWait):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
