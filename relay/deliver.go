// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prologin/prololo/lib/clock"
	"github.com/prologin/prololo/lib/metrics"
	"github.com/prologin/prololo/lib/ref"
	"github.com/prologin/prololo/messaging"
)

// queueCapacity bounds each per-room send queue. A full queue drops
// the message rather than blocking webhook responses.
const queueCapacity = 64

// defaultSendTimeout bounds a single send attempt against the
// homeserver. A timed-out attempt counts as a transient failure.
const defaultSendTimeout = 30 * time.Second

// Sender is the chat backend's send primitive. *messaging.Session
// implements it.
type Sender interface {
	SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
}

// EngineConfig configures a delivery Engine.
type EngineConfig struct {
	// Sender performs the actual Matrix sends. Required.
	Sender Sender

	// Log deduplicates deliveries. Required.
	Log *DeliveryLog

	// Clock drives backoff waits. Required.
	Clock clock.Clock

	// Logger for delivery outcomes. Required.
	Logger *slog.Logger

	// Metrics receives delivery counters. Optional.
	Metrics *metrics.Metrics

	// MaxAttempts is the per-message attempt ceiling, counting the
	// first attempt. Required, at least 1.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles
	// after each failed attempt up to MaxBackoff. Required.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling and any server-suggested delay.
	// Required.
	MaxBackoff time.Duration

	// SendTimeout bounds one send attempt. Defaults to 30s.
	SendTimeout time.Duration
}

// Engine delivers formatted messages to Matrix rooms with
// deduplication and bounded retry.
//
// Each destination room gets its own worker goroutine, started lazily
// on first use, so messages to one room are sent in arrival order
// while different rooms deliver in parallel. Transient send failures
// retry with exponential backoff up to the attempt ceiling; permanent
// failures and exhausted retries are logged and recorded, never
// surfaced to the webhook sender.
type Engine struct {
	config EngineConfig

	// ctx is canceled when Close gives up on in-flight sends.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[ref.RoomID]chan queuedMessage
	closed bool

	wg sync.WaitGroup
}

type queuedMessage struct {
	deliveryID string
	room       ref.RoomID
	content    messaging.MessageContent
}

// NewEngine creates a delivery engine. Panics on missing required
// configuration.
func NewEngine(config EngineConfig) *Engine {
	if config.Sender == nil {
		panic("Engine: Sender is required")
	}
	if config.Log == nil {
		panic("Engine: Log is required")
	}
	if config.Clock == nil {
		panic("Engine: Clock is required")
	}
	if config.Logger == nil {
		panic("Engine: Logger is required")
	}
	if config.MaxAttempts < 1 {
		panic("Engine: MaxAttempts must be at least 1")
	}
	if config.InitialBackoff <= 0 || config.MaxBackoff <= 0 {
		panic("Engine: backoff durations must be positive")
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[ref.RoomID]chan queuedMessage),
	}
}

// Enqueue queues a message for delivery to room. Returns true when the
// message was accepted, false when it was suppressed as a duplicate of
// an already-sent or in-flight delivery, dropped by backpressure, or
// refused because the engine is closing.
//
// An empty deliveryID skips deduplication: the sender gave us nothing
// to correlate retries by.
func (e *Engine) Enqueue(deliveryID string, room ref.RoomID, content messaging.MessageContent) bool {
	if deliveryID != "" && !e.config.Log.Claim(deliveryID, room) {
		e.config.Logger.Debug("delivery: duplicate suppressed",
			"delivery_id", deliveryID,
			"room", room,
		)
		e.countDelivered("duplicate")
		return false
	}

	message := queuedMessage{deliveryID: deliveryID, room: room, content: content}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.finish(message, false)
		return false
	}
	queue, exists := e.queues[room]
	if !exists {
		queue = make(chan queuedMessage, queueCapacity)
		e.queues[room] = queue
		e.wg.Add(1)
		go e.worker(queue)
	}

	// The send stays under the lock: Close closes the queues while
	// holding it, so an Enqueue racing Close must not reach a closed
	// channel. The send never blocks, so the lock is held only briefly.
	var accepted bool
	select {
	case queue <- message:
		accepted = true
	default:
	}
	e.mu.Unlock()

	if !accepted {
		// Queue full. Dropping here keeps webhook responses fast; the
		// failure is recorded so a sender retry can redeliver.
		e.config.Logger.Error("delivery: room queue full, dropping message",
			"room", room,
			"delivery_id", deliveryID,
		)
		e.finish(message, false)
		return false
	}
	return true
}

// worker drains one room's queue, serializing sends to that room.
func (e *Engine) worker(queue chan queuedMessage) {
	defer e.wg.Done()
	for message := range queue {
		e.send(message)
	}
}

// send runs the retry state machine for one message: a bounded loop
// with an attempt counter and a doubling delay, so termination is
// structural.
func (e *Engine) send(message queuedMessage) {
	delay := e.config.InitialBackoff

	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(e.ctx, e.config.SendTimeout)
		eventID, err := e.config.Sender.SendMessage(sendCtx, message.room, message.content)
		cancel()

		if err == nil {
			e.config.Logger.Info("delivery: message sent",
				"room", message.room,
				"event_id", eventID,
				"delivery_id", message.deliveryID,
				"attempt", attempt,
			)
			e.finish(message, true)
			return
		}

		if !isTransient(err) {
			e.config.Logger.Error("delivery: permanent send failure",
				"room", message.room,
				"delivery_id", message.deliveryID,
				"error", err,
			)
			e.finish(message, false)
			return
		}

		if attempt >= e.config.MaxAttempts {
			e.config.Logger.Error("delivery: giving up after retries",
				"room", message.room,
				"delivery_id", message.deliveryID,
				"attempts", attempt,
				"error", err,
			)
			e.finish(message, false)
			return
		}

		// Honor a server-suggested delay when it exceeds our own.
		wait := delay
		var matrixErr *messaging.MatrixError
		if errors.As(err, &matrixErr) && matrixErr.RetryAfter() > wait {
			wait = matrixErr.RetryAfter()
		}
		if wait > e.config.MaxBackoff {
			wait = e.config.MaxBackoff
		}

		e.config.Logger.Warn("delivery: transient send failure, retrying",
			"room", message.room,
			"delivery_id", message.deliveryID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		if e.config.Metrics != nil {
			e.config.Metrics.DeliveryRetries.Inc()
		}

		select {
		case <-e.config.Clock.After(wait):
		case <-e.ctx.Done():
			e.finish(message, false)
			return
		}

		delay *= 2
		if delay > e.config.MaxBackoff {
			delay = e.config.MaxBackoff
		}
	}
}

// finish records the terminal outcome of a message.
func (e *Engine) finish(message queuedMessage, sent bool) {
	if message.deliveryID != "" {
		e.config.Log.Complete(message.deliveryID, message.room, sent)
	}
	if sent {
		e.countDelivered("sent")
	} else {
		e.countDelivered("failed")
	}
}

func (e *Engine) countDelivered(outcome string) {
	if e.config.Metrics != nil {
		e.config.Metrics.MessagesDelivered.WithLabelValues(outcome).Inc()
	}
}

// isTransient classifies a send error. Matrix errors carry their own
// classification; anything else (network failure, timeout) is assumed
// transient.
func isTransient(err error) bool {
	var matrixErr *messaging.MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Temporary()
	}
	return true
}

// Close stops accepting new messages and waits for queued sends to
// drain. If ctx expires first, in-flight sends and backoff waits are
// aborted and their messages recorded as failed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		for _, queue := range e.queues {
			close(queue)
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
