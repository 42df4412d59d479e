package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/orbenz/movie-booking-system/internal/domain"
)

const defaultReplyTimeout = 30 * time.Second

// TicketClient is the requesting side of the ticket protocol: it routes
// reserve/cancel requests to the worker and dispatches correlated replies
// back to the blocked callers.
type TicketClient struct {
	publisher    Publisher
	pending      *pendingTable
	replyTimeout time.Duration
	logger       *slog.Logger

	stopSweeper chan struct{}
}

type TicketClientOption func(*TicketClient)

func WithReplyTimeout(timeout time.Duration) TicketClientOption {
	return func(c *TicketClient) {
		c.replyTimeout = timeout
	}
}

func NewTicketClient(publisher Publisher, logger *slog.Logger, opts ...TicketClientOption) *TicketClient {
	client := &TicketClient{
		publisher:    publisher,
		pending:      newPendingTable(),
		replyTimeout: defaultReplyTimeout,
		logger:       logger,
		stopSweeper:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(client)
	}

	go client.sweepLoop()

	return client
}

// Reserve publishes a ticket order and blocks until the worker's receipt
// arrives, delivery fails, or the reply window elapses. A timeout means the
// outcome is unknown, not that nothing happened: the worker may still process
// the order.
func (c *TicketClient) Reserve(ctx context.Context, order domain.TicketOrder) (*domain.TicketReceipt, error) {
	body, err := c.request(ctx, order, TicketReserveRoutingKey, TicketReserveReplyRoutingKey)
	if err != nil {
		return nil, err
	}

	var receipt domain.TicketReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("decode ticket receipt: %w", err)
	}

	return &receipt, nil
}

// Cancel publishes a cancellation request and blocks until the worker
// confirms the refund, with the same delivery and timeout semantics as
// Reserve.
func (c *TicketClient) Cancel(
	ctx context.Context,
	cancellation domain.TicketCancellation) (*domain.TicketCancellation, error) {

	body, err := c.request(ctx, cancellation, TicketCancelRoutingKey, TicketCancelReplyRoutingKey)
	if err != nil {
		return nil, err
	}

	var confirmation domain.TicketCancellation
	if err := json.Unmarshal(body, &confirmation); err != nil {
		return nil, fmt.Errorf("decode cancellation confirmation: %w", err)
	}

	return &confirmation, nil
}

func (c *TicketClient) request(
	ctx context.Context,
	payload any,
	routingKey, replyTo string) ([]byte, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode ticket request: %w", err)
	}

	correlationID := uuid.NewString()

	// The pending entry must exist before the publish: a fast worker could
	// otherwise reply before the dispatcher knows whom to resolve.
	request := c.pending.add(correlationID)

	err = c.publisher.Publish(ctx, Outbound{
		RoutingKey:    routingKey,
		CorrelationID: correlationID,
		ReplyTo:       replyTo,
		Body:          body,
	})
	if err != nil {
		c.pending.remove(correlationID)
		return nil, fmt.Errorf("%w: %s", domain.ErrDeliveryFailed, err)
	}

	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()

	select {
	case reply := <-request.done:
		return reply, nil
	case <-timer.C:
		c.pending.remove(correlationID)
		return nil, domain.ErrReplyTimeout
	case <-ctx.Done():
		c.pending.remove(correlationID)
		return nil, ctx.Err()
	}
}

// HandleReply is the dispatcher: it matches an incoming reply to its pending
// request by correlation id. Replies with no matching entry are discarded,
// which covers duplicate deliveries and replies that lost the race against a
// timeout. Every reply is acked either way; redelivering it could change
// nothing.
func (c *TicketClient) HandleReply(ctx context.Context, delivery Delivery) Action {
	if delivery.CorrelationID == "" {
		c.logger.Warn("dropping reply without correlation id")
		return Ack
	}

	if !c.pending.resolve(delivery.CorrelationID, delivery.Body) {
		c.logger.Debug("discarding reply with no pending request",
			"correlation_id", delivery.CorrelationID,
		)
	}

	return Ack
}

// PendingRequests reports the number of in-flight correlated requests.
func (c *TicketClient) PendingRequests() int {
	return c.pending.size()
}

// Close stops the background sweeper. In-flight callers keep their pending
// entries and time out on their own.
func (c *TicketClient) Close() {
	close(c.stopSweeper)
}

func (c *TicketClient) sweepLoop() {
	ticker := time.NewTicker(c.replyTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweeper:
			return
		case <-ticker.C:
			if swept := c.pending.sweep(2 * c.replyTimeout); swept > 0 {
				c.logger.Warn("swept expired pending ticket requests", "count", swept)
			}
		}
	}
}
