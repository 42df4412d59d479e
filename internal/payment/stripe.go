package payment

import (
	"context"
	"fmt"

	"github.com/orbenz/movie-booking-system/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeProcessor performs ticket payment captures and refunds through
// Stripe PaymentIntents. Idempotency across message redeliveries is handled
// by the worker before the processor is invoked.
type StripeProcessor struct{}

func NewStripeProcessor() *StripeProcessor {
	return &StripeProcessor{}
}

func (s *StripeProcessor) Charge(ctx context.Context, order domain.TicketOrder) (string, error) {
	priceCents := order.MovieDetails.Price.Mul(decimal.NewFromInt(100)).IntPart()

	seatLabel := fmt.Sprintf("Row %d Seat %d", order.MovieDetails.Row, order.MovieDetails.Column)

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:   stripe.Int64(priceCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(fmt.Sprintf(
			"🎬 %s - %s • Hall: %s • Showtime: %s",
			order.MovieDetails.MovieTitle,
			seatLabel,
			order.MovieDetails.HallName,
			order.MovieDetails.At.Format("Jan 2, 2006 15:04"),
		)),
		ReceiptEmail: stripe.String(order.UserDetails.Email),
		Metadata: map[string]string{
			"user_showtime_id": order.UserShowtimeID,
			"user_id":          order.UserDetails.ID,
			"showtime_at":      order.MovieDetails.At.UTC().Format("2006-01-02T15:04:05Z"),
		},
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}

	return intent.ID, nil
}

// Refund issues a refund for every charge the cancelled users hold. The
// cancellation contract carries no transaction reference, so charges are
// resolved through the metadata attached at capture time.
func (s *StripeProcessor) Refund(ctx context.Context, cancellation domain.TicketCancellation) error {
	for _, userID := range cancellation.UserIDs {
		query := fmt.Sprintf("metadata['user_id']:'%s' AND status:'succeeded'", userID)

		iter := paymentintent.Search(&stripe.PaymentIntentSearchParams{
			SearchParams: stripe.SearchParams{
				Context: ctx,
				Query:   query,
			},
		})

		for iter.Next() {
			intent := iter.PaymentIntent()

			_, err := refund.New(&stripe.RefundParams{
				Params: stripe.Params{
					Context: ctx,
				},
				PaymentIntent: stripe.String(intent.ID),
			})
			if err != nil {
				return fmt.Errorf("refund payment intent %s: %w", intent.ID, err)
			}
		}

		if err := iter.Err(); err != nil {
			return fmt.Errorf("search payment intents for user %s: %w", userID, err)
		}
	}

	return nil
}
