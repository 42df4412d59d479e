package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Matches the publisher configuration of the ticket worker deployment.
	defaultMaxPublishAttempts = 32

	publishBackoffInitial = 100 * time.Millisecond
	publishBackoffCap     = 5 * time.Second

	consumerPrefetch = 50
)

// Broker is the AMQP adapter behind the Publisher/consumer capability
// interfaces. It owns one confirm-mode channel for publishing and one channel
// per consumer.
type Broker struct {
	conn        *amqp.Connection
	publishCh   *amqp.Channel
	logger      *slog.Logger
	maxAttempts int

	mu        sync.Mutex
	consumers []*amqp.Channel
	wg        sync.WaitGroup

	closed chan *amqp.Error
}

func Dial(url string, logger *slog.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	publishCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	if err := publishCh.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	if err := declareTopology(publishCh); err != nil {
		conn.Close()
		return nil, err
	}

	b := &Broker{
		conn:        conn,
		publishCh:   publishCh,
		logger:      logger,
		maxAttempts: defaultMaxPublishAttempts,
		closed:      make(chan *amqp.Error, 1),
	}
	conn.NotifyClose(b.closed)

	return b, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", Exchange, err)
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{TicketReserveQueue, TicketReserveRoutingKey},
		{TicketReserveReplyQueue, TicketReserveReplyRoutingKey},
		{TicketCancelQueue, TicketCancelRoutingKey},
		{TicketCancelReplyQueue, TicketCancelReplyRoutingKey},
	}

	for _, binding := range bindings {
		if _, err := ch.QueueDeclare(binding.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %q: %w", binding.queue, err)
		}

		if err := ch.QueueBind(binding.queue, binding.routingKey, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %q: %w", binding.queue, err)
		}
	}

	return nil
}

// Publish sends the message with delivery confirmation, retrying with capped
// backoff up to the attempt budget. A message that the broker never confirms
// fails with ErrPublishUnconfirmed; nothing was durably enqueued from the
// caller's point of view, so the whole request is safe to retry.
func (b *Broker) Publish(ctx context.Context, msg Outbound) error {
	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: msg.CorrelationID,
		ReplyTo:       msg.ReplyTo,
		Timestamp:     time.Now().UTC(),
		Body:          msg.Body,
	}

	backoff := publishBackoffInitial

	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		confirmation, err := b.publishCh.PublishWithDeferredConfirmWithContext(
			ctx, Exchange, msg.RoutingKey, true, false, publishing)
		if err == nil {
			acked, waitErr := confirmation.WaitContext(ctx)
			if waitErr != nil {
				return waitErr
			}
			if acked {
				return nil
			}

			b.logger.Warn("publish nacked by broker",
				"routing_key", msg.RoutingKey,
				"attempt", attempt,
			)
		} else {
			b.logger.Warn("publish failed",
				"routing_key", msg.RoutingKey,
				"attempt", attempt,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < publishBackoffCap {
			backoff *= 2
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrPublishUnconfirmed, b.maxAttempts)
}

// Consume starts a consumer goroutine on its own channel. The handler's
// Action decides the settlement of each delivery. The goroutine exits when
// the channel closes, which happens on Close or when the connection drops.
func (b *Broker) Consume(ctx context.Context, queue string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set consumer QoS: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %q: %w", queue, err)
	}

	b.mu.Lock()
	b.consumers = append(b.consumers, ch)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for delivery := range deliveries {
			action := handler(ctx, Delivery{
				CorrelationID: delivery.CorrelationId,
				ReplyTo:       delivery.ReplyTo,
				Body:          delivery.Body,
			})

			var err error
			switch action {
			case Ack:
				err = delivery.Ack(false)
			case Drop:
				err = delivery.Nack(false, false)
			case Requeue:
				err = delivery.Nack(false, true)
			}
			if err != nil {
				b.logger.Error("settle delivery failed", "queue", queue, "error", err)
			}
		}
	}()

	return nil
}

// Closed fires when the underlying connection terminates unexpectedly. The
// process supervisor should treat that as fatal and shut down.
func (b *Broker) Closed() <-chan *amqp.Error {
	return b.closed
}

// Close drains the broker connection: consumer channels close first so no new
// deliveries arrive, then the connection (which also flushes in-flight
// confirms) is torn down.
func (b *Broker) Close() error {
	b.mu.Lock()
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	for _, ch := range consumers {
		if err := ch.Close(); err != nil {
			b.logger.Warn("close consumer channel failed", "error", err)
		}
	}

	b.wg.Wait()

	return b.conn.Close()
}
