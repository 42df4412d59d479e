// Package booking orchestrates showtime scheduling and seat reservations. It
// keeps the relational state strongly consistent through the showtime store
// and delegates ticket fulfillment to the worker over the messaging layer.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/orbenz/movie-booking-system/internal/domain"
)

type Service struct {
	showtimes domain.ShowtimeRepository
	halls     domain.HallRepository
	movies    domain.MovieRepository
	tickets   domain.TicketClient
	assets    AssetRemover
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewService(
	showtimes domain.ShowtimeRepository,
	halls domain.HallRepository,
	movies domain.MovieRepository,
	tickets domain.TicketClient,
	assets AssetRemover,
	validate *validator.Validate,
	logger *slog.Logger) *Service {

	return &Service{
		showtimes: showtimes,
		halls:     halls,
		movies:    movies,
		tickets:   tickets,
		assets:    assets,
		validate:  validate,
		logger:    logger,
	}
}

type CreateShowtimeInput struct {
	MovieID  string    `validate:"required,uuid"`
	HallID   string    `validate:"required,uuid"`
	StartsAt time.Time `validate:"required,future"`
}

// CreateShowtime schedules a screening. The (hall, time) uniqueness is left
// to the store's constraint, which is the only place the race between two
// concurrent creates can be decided.
func (s *Service) CreateShowtime(ctx context.Context, input CreateShowtimeInput) (*domain.Showtime, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	showtime := &domain.Showtime{
		MovieID:  input.MovieID,
		HallID:   input.HallID,
		StartsAt: input.StartsAt,
	}

	if err := s.showtimes.Create(ctx, showtime); err != nil {
		return nil, err
	}

	return showtime, nil
}

// UpdateShowtime applies a partial update. An update touching zero fields is
// a no-op success and returns the current state.
func (s *Service) UpdateShowtime(
	ctx context.Context,
	id string,
	update domain.ShowtimeUpdate) (*domain.Showtime, error) {

	if update.IsZero() {
		return s.showtimes.GetById(ctx, id)
	}

	return s.showtimes.Update(ctx, id, update)
}

func (s *Service) DeleteShowtime(ctx context.Context, id string) error {
	return s.showtimes.Delete(ctx, id)
}

func (s *Service) GetShowtime(ctx context.Context, id string) (*domain.Showtime, error) {
	return s.showtimes.GetById(ctx, id)
}

type ReserveSeatInput struct {
	ShowtimeID string `validate:"required,uuid"`
	Row        int    `validate:"min=1"`
	Column     int    `validate:"min=1"`
	UserID     string `validate:"required,uuid"`
	UserEmail  string `validate:"required,email"`
}

// ReserveSeat books the seat and delegates ticket issuance to the worker.
// The in-memory bounds and availability checks reject obviously doomed
// requests before any write; the reservation insert's unique constraint
// settles whoever wins a race past the pre-checks.
func (s *Service) ReserveSeat(ctx context.Context, input ReserveSeatInput) (*domain.TicketReceipt, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	showtime, err := s.showtimes.GetById(ctx, input.ShowtimeID)
	if err != nil {
		return nil, err
	}

	hall, err := s.halls.GetById(ctx, showtime.HallID)
	if err != nil {
		return nil, err
	}

	if !domain.SeatInBounds(hall, input.Row, input.Column) {
		return nil, fmt.Errorf("%w: [%d,%d] in a %dx%d hall",
			domain.ErrSeatOutOfBounds, input.Row, input.Column, hall.Rows, hall.Columns)
	}

	if !domain.SeatFree(showtime, input.Row, input.Column) {
		return nil, domain.ErrSeatTaken
	}

	movie, err := s.movies.GetById(ctx, showtime.MovieID)
	if err != nil {
		return nil, err
	}

	reservation := &domain.Reservation{
		ShowtimeID: showtime.ID,
		Row:        input.Row,
		Column:     input.Column,
		UserID:     input.UserID,
	}

	if err := s.showtimes.AddReservation(ctx, reservation); err != nil {
		return nil, err
	}

	order := domain.TicketOrder{
		UserShowtimeID: reservation.ID,
		UserDetails: domain.UserDetails{
			ID:    input.UserID,
			Email: input.UserEmail,
		},
		MovieDetails: domain.MovieDetails{
			HallName:   hall.Name,
			MovieTitle: movie.Title,
			Price:      movie.Price,
			At:         showtime.StartsAt,
			Row:        input.Row,
			Column:     input.Column,
		},
	}

	receipt, err := s.tickets.Reserve(ctx, order)
	if err != nil {
		// Delivery failure means no fulfillment happened, so the seat can be
		// released and the whole request retried. A timeout means the outcome
		// is unknown; the seat stays held until reconciled out-of-band.
		if errors.Is(err, domain.ErrDeliveryFailed) {
			s.releaseSeat(ctx, reservation)
		}

		return nil, err
	}

	return receipt, nil
}

// releaseSeat undoes exactly the reservation this request created. Seats the
// same user booked in earlier requests are not touched.
func (s *Service) releaseSeat(ctx context.Context, reservation *domain.Reservation) {
	if err := s.showtimes.RemoveReservation(ctx, reservation.ID); err != nil {
		s.logger.Error("compensating seat release failed",
			"showtime_id", reservation.ShowtimeID,
			"reservation_id", reservation.ID,
			"error", err,
		)
	}
}

type CancelReservationsInput struct {
	ShowtimeID string   `validate:"required,uuid"`
	UserIDs    []string `validate:"required,min=1,dive,required,uuid"`
}

// CancelReservations removes every reservation the listed users hold on the
// showtime and asks the worker to refund them. The removal is idempotent and
// reported as an aggregate count: ids without a reservation are simply not
// counted. Refunds are only requested when something was actually removed.
func (s *Service) CancelReservations(ctx context.Context, input CancelReservationsInput) (int64, error) {
	if err := s.validate.Struct(input); err != nil {
		return 0, err
	}

	removed, err := s.showtimes.RemoveReservations(ctx, input.ShowtimeID, input.UserIDs)
	if err != nil {
		return 0, err
	}

	if removed == 0 {
		return 0, nil
	}

	_, err = s.tickets.Cancel(ctx, domain.TicketCancellation{
		ShowtimeID: input.ShowtimeID,
		UserIDs:    domain.UserIDList(input.UserIDs),
	})
	if err != nil {
		// The reservations are already gone; the refund outcome must be
		// reconciled by the caller.
		return removed, err
	}

	return removed, nil
}

// UpdateMovie applies the movie and poster changes as one atomic unit, then
// removes the replaced poster file. The cleanup runs strictly after commit
// and is best effort: the authoritative state is already correct, so a
// failed deletion is logged, never rolled back and never retried inline.
func (s *Service) UpdateMovie(ctx context.Context, id string, update domain.MovieUpdate) (*domain.Movie, error) {
	if update.IsZero() {
		return nil, domain.ErrEmptyUpdate
	}

	movie, stalePosterPath, err := s.movies.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	if stalePosterPath != "" && update.Poster != nil {
		if err := s.assets.Remove(stalePosterPath); err != nil {
			s.logger.Warn("stale poster cleanup failed",
				"movie_id", id,
				"path", stalePosterPath,
				"error", err,
			)
		}
	}

	return movie, nil
}
