package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/orbenz/movie-booking-system/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTranslateShowtimeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "hall slot unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintShowtimeSlot},
			want: domain.ErrHallSlotTaken,
		},
		{
			name: "seat unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintReservationKey},
			want: domain.ErrSeatTaken,
		},
		{
			name: "movie foreign key violation",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintShowtimeMovie},
			want: domain.ErrMovieNotFound,
		},
		{
			name: "hall foreign key violation",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintShowtimeHall},
			want: domain.ErrHallNotFound,
		},
		{
			name: "reservation foreign key violation",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintReservationFK},
			want: domain.ErrRecordNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateShowtimeError(tt.err), tt.want)
		})
	}
}

func TestTranslateShowtimeErrorWrappedPgError(t *testing.T) {
	wrapped := fmt.Errorf("insert showtime: %w", &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: constraintShowtimeSlot,
	})

	assert.ErrorIs(t, translateShowtimeError(wrapped), domain.ErrHallSlotTaken)
}

func TestTranslateShowtimeErrorPassesThroughUnknownErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "not a postgres error",
			err:  errors.New("connection reset"),
		},
		{
			name: "unique violation on unknown constraint",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "something_else"},
		},
		{
			name: "unrelated postgres error code",
			err:  &pgconn.PgError{Code: pgerrcode.SerializationFailure},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.err, translateShowtimeError(tt.err))
		})
	}
}
