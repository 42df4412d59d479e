// Package messaging implements the correlated request/reply protocol between
// the booking side and the ticket worker, on top of a durable, confirm-mode
// AMQP topology.
package messaging

import (
	"context"
	"errors"
)

// Topology shared by both processes. Names are part of the deployment
// contract; the worker and the booking service must agree on them.
const (
	Exchange = "mrs"

	TicketReserveQueue      = "mrs.ticket.reserve"
	TicketReserveRoutingKey = "mrs-ticket-reserve"

	TicketReserveReplyQueue      = "mrs.ticket.reserve.reply.to"
	TicketReserveReplyRoutingKey = "mrs-ticket-reserve-reply-to"

	TicketCancelQueue      = "mrs.ticket.cancel"
	TicketCancelRoutingKey = "mrs-ticket-cancel"

	TicketCancelReplyQueue      = "mrs.ticket.cancel.reply.to"
	TicketCancelReplyRoutingKey = "mrs-ticket-cancel-reply-to"
)

// ErrPublishUnconfirmed is returned when the broker rejected or never
// confirmed a publish within the bounded attempt budget.
var ErrPublishUnconfirmed = errors.New("publish not confirmed by broker")

// Outbound is a message to publish on the shared exchange.
type Outbound struct {
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
	Body          []byte
}

// Publisher publishes with delivery confirmation. Implementations retry a
// bounded number of times and return ErrPublishUnconfirmed when the budget
// is exhausted.
type Publisher interface {
	Publish(ctx context.Context, msg Outbound) error
}

// Delivery is an inbound message handed to a Handler.
type Delivery struct {
	CorrelationID string
	ReplyTo       string
	Body          []byte
}

// Action tells the consumer loop what to do with the delivery. Every message
// is explicitly settled; handlers never silently swallow one.
type Action int

const (
	// Ack settles the message as processed (also used for malformed
	// messages that can never succeed).
	Ack Action = iota
	// Drop rejects the message without requeueing it.
	Drop
	// Requeue rejects the message and asks the broker to redeliver it.
	Requeue
)

// Handler processes one delivery and decides its fate.
type Handler func(ctx context.Context, delivery Delivery) Action
