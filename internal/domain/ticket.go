package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Wire-level payloads exchanged with the ticket worker. Field names are part
// of the broker contract and must not change without coordinating both sides.

type UserDetails struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type MovieDetails struct {
	HallName   string          `json:"hallName" validate:"required"`
	MovieTitle string          `json:"movieTitle" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	At         time.Time       `json:"at"`
	Row        int             `json:"row" validate:"min=1"`
	Column     int             `json:"column" validate:"min=1"`
}

// TicketOrder asks the worker to capture payment and issue a ticket for a
// single reserved seat.
type TicketOrder struct {
	UserShowtimeID string       `json:"userShowtimeId" validate:"required"`
	UserDetails    UserDetails  `json:"userDetails"`
	MovieDetails   MovieDetails `json:"movieDetails"`
}

// TicketReceipt is the worker's reply to a TicketOrder.
type TicketReceipt struct {
	UserShowtimeID string `json:"userShowtimeId"`
	TransactionID  string `json:"transactionId"`
}

// TicketCancellation asks the worker to refund one or more users on a
// showtime. The reply echoes the same shape back.
type TicketCancellation struct {
	ShowtimeID string     `json:"showtimeId" validate:"required"`
	UserIDs    UserIDList `json:"userIds" validate:"required,min=1"`
}

// UserIDList accepts either a single JSON string or an array of strings, the
// two shapes the cancellation contract allows.
type UserIDList []string

func (l *UserIDList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = UserIDList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}

	*l = UserIDList(many)
	return nil
}

func (l UserIDList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}

	return json.Marshal([]string(l))
}

// TicketClient is the requesting side of the correlated request/reply
// protocol. Both calls block until the matching reply arrives, delivery
// fails, or the reply window elapses.
type TicketClient interface {
	Reserve(ctx context.Context, order TicketOrder) (*TicketReceipt, error)
	Cancel(ctx context.Context, cancellation TicketCancellation) (*TicketCancellation, error)
}

// PaymentProcessor performs the external fulfillment action. Implementations
// do not need to deduplicate: the worker guards redeliveries with an
// idempotency key before invoking the processor.
type PaymentProcessor interface {
	Charge(ctx context.Context, order TicketOrder) (transactionID string, err error)
	Refund(ctx context.Context, cancellation TicketCancellation) error
}
