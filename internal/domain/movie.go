package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Movie struct {
	ID          string
	Title       string
	Description string
	Genre       string
	Price       decimal.Decimal
}

// MoviePoster is the binary asset attached to a movie. The file itself lives
// on disk; the row only references it.
type MoviePoster struct {
	MovieID      string
	AbsolutePath string
	MimeType     string
	SizeInBytes  int64
}

// MovieUpdate is a partial update; nil fields are left untouched. A non-nil
// Poster replaces the poster row in the same transaction as the movie row.
type MovieUpdate struct {
	Title       *string
	Description *string
	GenreID     *string
	Price       *decimal.Decimal
	Poster      *MoviePoster
}

func (u MovieUpdate) IsZero() bool {
	return u.Title == nil && u.Description == nil && u.GenreID == nil && u.Price == nil && u.Poster == nil
}

type MovieRepository interface {
	GetById(ctx context.Context, id string) (*Movie, error)

	// Update applies the partial update atomically and returns the updated
	// movie together with the absolute path of the poster that was replaced,
	// if any, so the caller can clean the stale file up after commit.
	Update(ctx context.Context, id string, update MovieUpdate) (*Movie, string, error)
}
