package domain

import (
	"context"
	"time"
)

type Hall struct {
	ID      string
	Name    string
	Rows    int
	Columns int
}

type Showtime struct {
	ID           string
	MovieID      string
	HallID       string
	StartsAt     time.Time
	Reservations []Reservation
}

// Reservation binds one seat in one showtime to one user. ID doubles as the
// userShowtimeId carried on the ticket wire contract.
type Reservation struct {
	ID         string
	ShowtimeID string
	Row        int
	Column     int
	UserID     string
}

// ShowtimeUpdate is a partial update; nil fields are left untouched.
type ShowtimeUpdate struct {
	MovieID  *string
	HallID   *string
	StartsAt *time.Time
}

func (u ShowtimeUpdate) IsZero() bool {
	return u.MovieID == nil && u.HallID == nil && u.StartsAt == nil
}

type ShowtimeRepository interface {
	Create(ctx context.Context, showtime *Showtime) error
	Update(ctx context.Context, id string, update ShowtimeUpdate) (*Showtime, error)
	Delete(ctx context.Context, id string) error
	GetById(ctx context.Context, id string) (*Showtime, error)
	AddReservation(ctx context.Context, reservation *Reservation) error
	RemoveReservation(ctx context.Context, reservationID string) error
	RemoveReservations(ctx context.Context, showtimeID string, userIDs []string) (int64, error)
}

type HallRepository interface {
	GetById(ctx context.Context, id string) (*Hall, error)
}
