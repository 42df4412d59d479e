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

const constraintMovieGenre = "movie_genre_id_fk"

type PostgresMovieRepository struct {
	db *pgxpool.Pool
}

func NewPostgresMovieRepository(db *pgxpool.Pool) *PostgresMovieRepository {
	return &PostgresMovieRepository{
		db: db,
	}
}

func (p *PostgresMovieRepository) GetById(ctx context.Context, id string) (*domain.Movie, error) {
	query := `
		SELECT m.id, m.title, m.description, g.name, m.price
		FROM movies m
		JOIN genres g ON g.id = m.genre_id
		WHERE m.id = $1
	`

	var movie domain.Movie

	err := p.db.QueryRow(ctx, query, id).Scan(
		&movie.ID,
		&movie.Title,
		&movie.Description,
		&movie.Genre,
		&movie.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMovieNotFound
		}

		return nil, err
	}

	return &movie, nil
}

// Update applies the movie row change and, when a poster is supplied, the
// poster row change inside one transaction: both commit or neither does. The
// path of the poster being replaced is returned so the caller can delete the
// stale file once the transaction has committed.
func (p *PostgresMovieRepository) Update(
	ctx context.Context,
	id string,
	update domain.MovieUpdate) (*domain.Movie, string, error) {

	var movie domain.Movie
	var stalePosterPath string

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		if update.Poster != nil {
			path, err := replaceMoviePoster(ctx, tx, id, update.Poster)
			if err != nil {
				return err
			}

			stalePosterPath = path
		}

		if err := updateMovieRow(ctx, tx, id, update); err != nil {
			return err
		}

		// The row must exist at this point since we are inside the same
		// transaction as the update.
		query := `
			SELECT m.id, m.title, m.description, g.name, m.price
			FROM movies m
			JOIN genres g ON g.id = m.genre_id
			WHERE m.id = $1
		`

		return tx.QueryRow(ctx, query, id).Scan(
			&movie.ID,
			&movie.Title,
			&movie.Description,
			&movie.Genre,
			&movie.Price,
		)
	})
	if err != nil {
		return nil, "", err
	}

	return &movie, stalePosterPath, nil
}

func replaceMoviePoster(
	ctx context.Context,
	tx pgx.Tx,
	movieID string,
	poster *domain.MoviePoster) (string, error) {

	var previousPath string

	err := tx.QueryRow(
		ctx,
		`SELECT absolute_path FROM movie_posters WHERE movie_id = $1`,
		movieID).Scan(&previousPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrMovieNotFound
		}

		return "", err
	}

	_, err = tx.Exec(
		ctx,
		`UPDATE movie_posters
		SET absolute_path = $1, mime_type = $2, size_in_bytes = $3
		WHERE movie_id = $4`,
		poster.AbsolutePath,
		poster.MimeType,
		poster.SizeInBytes,
		movieID,
	)
	if err != nil {
		return "", err
	}

	return previousPath, nil
}

func updateMovieRow(ctx context.Context, tx pgx.Tx, id string, update domain.MovieUpdate) error {
	assignments := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if update.Title != nil {
		args = append(args, *update.Title)
		assignments = append(assignments, fmt.Sprintf("title = $%d", len(args)))
	}
	if update.Description != nil {
		args = append(args, *update.Description)
		assignments = append(assignments, fmt.Sprintf("description = $%d", len(args)))
	}
	if update.GenreID != nil {
		args = append(args, *update.GenreID)
		assignments = append(assignments, fmt.Sprintf("genre_id = $%d", len(args)))
	}
	if update.Price != nil {
		args = append(args, *update.Price)
		assignments = append(assignments, fmt.Sprintf("price = $%d", len(args)))
	}

	if len(assignments) == 0 {
		return nil
	}

	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE movies SET %s WHERE id = $%d RETURNING id`,
		strings.Join(assignments, ", "), len(args))

	var updatedID string

	err := tx.QueryRow(ctx, query, args...).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrMovieNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			pgErr.Code == pgerrcode.ForeignKeyViolation &&
			pgErr.ConstraintName == constraintMovieGenre {
			return domain.ErrRecordNotFound
		}

		return err
	}

	return nil
}
