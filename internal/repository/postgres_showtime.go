package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orbenz/movie-booking-system/internal/domain"
)

// Constraint names matching the database schema definition. The store relies
// on these to turn storage conflicts into domain errors, because only the
// database sees a serializable view at commit time; pre-checks in the service
// layer are advisory.
const (
	constraintShowtimeSlot   = "showtime_hall_id_at_unique"
	constraintShowtimeMovie  = "showtime_movie_id_fk"
	constraintShowtimeHall   = "showtime_hall_id_fk"
	constraintReservationKey = "user_showtime_showtime_id_row_column_unique"
	constraintReservationFK  = "user_showtime_showtime_id_fk"
)

type PostgresShowtimeRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowtimeRepository(db *pgxpool.Pool) *PostgresShowtimeRepository {
	return &PostgresShowtimeRepository{
		db: db,
	}
}

func (p *PostgresShowtimeRepository) Create(ctx context.Context, showtime *domain.Showtime) error {
	query := `
		INSERT INTO showtimes (movie_id, hall_id, at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := p.db.QueryRow(ctx, query, showtime.MovieID, showtime.HallID, showtime.StartsAt).
		Scan(&showtime.ID)
	if err != nil {
		return translateShowtimeError(err)
	}

	showtime.Reservations = []domain.Reservation{}

	return nil
}

func (p *PostgresShowtimeRepository) Update(
	ctx context.Context,
	id string,
	update domain.ShowtimeUpdate) (*domain.Showtime, error) {

	if update.IsZero() {
		return p.GetById(ctx, id)
	}

	assignments := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if update.MovieID != nil {
		args = append(args, *update.MovieID)
		assignments = append(assignments, fmt.Sprintf("movie_id = $%d", len(args)))
	}
	if update.HallID != nil {
		args = append(args, *update.HallID)
		assignments = append(assignments, fmt.Sprintf("hall_id = $%d", len(args)))
	}
	if update.StartsAt != nil {
		args = append(args, *update.StartsAt)
		assignments = append(assignments, fmt.Sprintf("at = $%d", len(args)))
	}

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE showtimes
		SET %s
		WHERE id = $%d
		RETURNING id, movie_id, hall_id, at`,
		strings.Join(assignments, ", "), len(args))

	var showtime domain.Showtime

	err := p.db.QueryRow(ctx, query, args...).Scan(
		&showtime.ID,
		&showtime.MovieID,
		&showtime.HallID,
		&showtime.StartsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, translateShowtimeError(err)
	}

	reservations, err := p.retrieveReservations(ctx, id)
	if err != nil {
		return nil, err
	}

	showtime.Reservations = reservations

	return &showtime, nil
}

func (p *PostgresShowtimeRepository) Delete(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM showtimes WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	return nil
}

func (p *PostgresShowtimeRepository) GetById(ctx context.Context, id string) (*domain.Showtime, error) {
	query := `
		SELECT id, movie_id, hall_id, at
		FROM showtimes
		WHERE id = $1
	`

	var showtime domain.Showtime

	err := p.db.QueryRow(ctx, query, id).Scan(
		&showtime.ID,
		&showtime.MovieID,
		&showtime.HallID,
		&showtime.StartsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	reservations, err := p.retrieveReservations(ctx, id)
	if err != nil {
		return nil, err
	}

	showtime.Reservations = reservations

	return &showtime, nil
}

func (p *PostgresShowtimeRepository) retrieveReservations(
	ctx context.Context,
	showtimeID string) ([]domain.Reservation, error) {

	query := `
		SELECT id, showtime_id, seat_row, seat_column, user_id
		FROM user_showtime
		WHERE showtime_id = $1
		ORDER BY seat_row, seat_column
	`

	rows, err := p.db.Query(ctx, query, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)

	for rows.Next() {
		var reservation domain.Reservation

		err = rows.Scan(
			&reservation.ID,
			&reservation.ShowtimeID,
			&reservation.Row,
			&reservation.Column,
			&reservation.UserID,
		)
		if err != nil {
			return nil, err
		}

		reservations = append(reservations, reservation)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reservations, nil
}

// AddReservation inserts the reservation row and lets the unique constraint
// decide whether the seat is free. Checking first and inserting after would
// leave a window for a concurrent caller to grab the seat in between.
func (p *PostgresShowtimeRepository) AddReservation(ctx context.Context, reservation *domain.Reservation) error {
	query := `
		INSERT INTO user_showtime (showtime_id, seat_row, seat_column, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := p.db.QueryRow(
		ctx,
		query,
		reservation.ShowtimeID,
		reservation.Row,
		reservation.Column,
		reservation.UserID).Scan(&reservation.ID)
	if err != nil {
		return translateShowtimeError(err)
	}

	return nil
}

// RemoveReservation deletes a single reservation by id. Deleting a
// reservation that is already gone is not an error.
func (p *PostgresShowtimeRepository) RemoveReservation(ctx context.Context, reservationID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM user_showtime WHERE id = $1`, reservationID)
	return err
}

// RemoveReservations deletes every reservation the given users hold on the
// showtime and returns the number of rows removed. Ids without a matching
// reservation are simply not counted; the call never fails on them.
func (p *PostgresShowtimeRepository) RemoveReservations(
	ctx context.Context,
	showtimeID string,
	userIDs []string) (int64, error) {

	query := `
		DELETE FROM user_showtime
		WHERE showtime_id = $1 AND user_id = ANY($2)
	`

	tag, err := p.db.Exec(ctx, query, showtimeID, userIDs)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func translateShowtimeError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintShowtimeSlot:
			return domain.ErrHallSlotTaken
		case constraintReservationKey:
			return domain.ErrSeatTaken
		}
	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintShowtimeMovie:
			return domain.ErrMovieNotFound
		case constraintShowtimeHall:
			return domain.ErrHallNotFound
		case constraintReservationFK:
			return domain.ErrRecordNotFound
		}
	}

	return err
}

type PostgresHallRepository struct {
	db *pgxpool.Pool
}

func NewPostgresHallRepository(db *pgxpool.Pool) *PostgresHallRepository {
	return &PostgresHallRepository{
		db: db,
	}
}

func (p *PostgresHallRepository) GetById(ctx context.Context, id string) (*domain.Hall, error) {
	query := `
		SELECT id, name, rows, columns
		FROM halls
		WHERE id = $1
	`

	var hall domain.Hall

	err := p.db.QueryRow(ctx, query, id).Scan(&hall.ID, &hall.Name, &hall.Rows, &hall.Columns)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHallNotFound
		}

		return nil, err
	}

	return &hall, nil
}
