// Package worker implements the ticket fulfillment worker: it consumes
// reserve and cancel requests from their routed queues, performs the payment
// action, and publishes a correlated reply to the requester's reply-to
// target.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/orbenz/movie-booking-system/internal/domain"
	"github.com/orbenz/movie-booking-system/internal/mailer"
	"github.com/orbenz/movie-booking-system/internal/messaging"
	"github.com/redis/go-redis/v9"
)

const (
	replyCachePrefix = "mrs:ticket:reply:"
	replyCacheTTL    = 24 * time.Hour

	receiptTemplate = "ticket_receipt.tmpl"
)

type Worker struct {
	publisher messaging.Publisher
	processor domain.PaymentProcessor
	mailer    mailer.Mailer
	redis     redis.UniversalClient
	validate  *validator.Validate
	logger    *slog.Logger
}

func New(
	publisher messaging.Publisher,
	processor domain.PaymentProcessor,
	m mailer.Mailer,
	redisClient redis.UniversalClient,
	validate *validator.Validate,
	logger *slog.Logger) *Worker {

	return &Worker{
		publisher: publisher,
		processor: processor,
		mailer:    m,
		redis:     redisClient,
		validate:  validate,
		logger:    logger,
	}
}

// HandleReserve processes one ticket order: charge, receipt email (best
// effort), then exactly one reply carrying the request's correlation id. The
// message is acked only after the reply publish is confirmed, so a crash in
// between leads to redelivery and the cached reply closes the loop without
// charging twice.
func (w *Worker) HandleReserve(ctx context.Context, delivery messaging.Delivery) messaging.Action {
	if delivery.CorrelationID == "" || delivery.ReplyTo == "" {
		w.logger.Warn("dropping ticket order without correlation id or reply target")
		return messaging.Ack
	}

	if cached, ok := w.cachedReply(ctx, delivery.CorrelationID); ok {
		w.logger.Info("republishing cached receipt for redelivered order",
			"correlation_id", delivery.CorrelationID,
		)
		return w.reply(ctx, delivery, cached)
	}

	var order domain.TicketOrder
	if err := json.Unmarshal(delivery.Body, &order); err != nil {
		w.logger.Warn("dropping undecodable ticket order", "error", err)
		return messaging.Drop
	}

	if err := w.validate.Struct(order); err != nil {
		w.logger.Warn("dropping invalid ticket order", "error", err)
		return messaging.Drop
	}

	transactionID, err := w.processor.Charge(ctx, order)
	if err != nil {
		w.logger.Error("payment capture failed",
			"correlation_id", delivery.CorrelationID,
			"user_showtime_id", order.UserShowtimeID,
			"error", err,
		)
		return messaging.Requeue
	}

	receipt := domain.TicketReceipt{
		UserShowtimeID: order.UserShowtimeID,
		TransactionID:  transactionID,
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		w.logger.Error("encode receipt failed", "error", err)
		return messaging.Requeue
	}

	w.storeReply(ctx, delivery.CorrelationID, body)

	w.sendReceiptEmail(order, receipt)

	return w.reply(ctx, delivery, body)
}

// HandleCancel processes a cancellation: refund, then a confirmation reply
// echoing the request, with the same ack-after-confirm discipline as reserve.
func (w *Worker) HandleCancel(ctx context.Context, delivery messaging.Delivery) messaging.Action {
	if delivery.CorrelationID == "" || delivery.ReplyTo == "" {
		w.logger.Warn("dropping cancellation without correlation id or reply target")
		return messaging.Ack
	}

	if cached, ok := w.cachedReply(ctx, delivery.CorrelationID); ok {
		w.logger.Info("republishing cached confirmation for redelivered cancellation",
			"correlation_id", delivery.CorrelationID,
		)
		return w.reply(ctx, delivery, cached)
	}

	var cancellation domain.TicketCancellation
	if err := json.Unmarshal(delivery.Body, &cancellation); err != nil {
		w.logger.Warn("dropping undecodable cancellation", "error", err)
		return messaging.Drop
	}

	if err := w.validate.Struct(cancellation); err != nil {
		w.logger.Warn("dropping invalid cancellation", "error", err)
		return messaging.Drop
	}

	if err := w.processor.Refund(ctx, cancellation); err != nil {
		w.logger.Error("refund failed",
			"correlation_id", delivery.CorrelationID,
			"showtime_id", cancellation.ShowtimeID,
			"error", err,
		)
		return messaging.Requeue
	}

	body, err := json.Marshal(cancellation)
	if err != nil {
		w.logger.Error("encode cancellation confirmation failed", "error", err)
		return messaging.Requeue
	}

	w.storeReply(ctx, delivery.CorrelationID, body)

	return w.reply(ctx, delivery, body)
}

func (w *Worker) reply(ctx context.Context, delivery messaging.Delivery, body []byte) messaging.Action {
	err := w.publisher.Publish(ctx, messaging.Outbound{
		RoutingKey:    delivery.ReplyTo,
		CorrelationID: delivery.CorrelationID,
		Body:          body,
	})
	if err != nil {
		w.logger.Error("reply publish failed",
			"correlation_id", delivery.CorrelationID,
			"reply_to", delivery.ReplyTo,
			"error", err,
		)
		return messaging.Requeue
	}

	return messaging.Ack
}

// cachedReply looks up the reply of an already-fulfilled correlation id. The
// cache is what makes redelivered messages safe: the action ran once, only
// the reply is repeated.
func (w *Worker) cachedReply(ctx context.Context, correlationID string) ([]byte, bool) {
	body, err := w.redis.Get(ctx, replyCachePrefix+correlationID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("reply cache lookup failed", "error", err)
		}
		return nil, false
	}

	return body, true
}

func (w *Worker) storeReply(ctx context.Context, correlationID string, body []byte) {
	err := w.redis.SetNX(ctx, replyCachePrefix+correlationID, body, replyCacheTTL).Err()
	if err != nil {
		w.logger.Warn("reply cache store failed", "error", err)
	}
}

func (w *Worker) sendReceiptEmail(order domain.TicketOrder, receipt domain.TicketReceipt) {
	data := map[string]any{
		"movieTitle":    order.MovieDetails.MovieTitle,
		"hallName":      order.MovieDetails.HallName,
		"at":            order.MovieDetails.At,
		"row":           order.MovieDetails.Row,
		"column":        order.MovieDetails.Column,
		"price":         order.MovieDetails.Price,
		"transactionId": receipt.TransactionID,
	}

	if err := w.mailer.Send(order.UserDetails.Email, receiptTemplate, data); err != nil {
		w.logger.Warn("receipt email failed",
			"user_showtime_id", order.UserShowtimeID,
			"error", err,
		)
	}
}
