package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/nudge/internal/models"
)

// replaceDisplayIDs bumps the user's listing generation and rewrites the
// whole display-id table for that user from listing.
func (p *Postgres) replaceDisplayIDs(ctx context.Context, tx pgx.Tx, listing *models.Listing) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO display_generations (user_id, generation) VALUES ($1, 1)
		 ON CONFLICT (user_id) DO UPDATE SET generation = display_generations.generation + 1
		 RETURNING generation`,
		listing.UserID,
	).Scan(&listing.Generation)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM display_ids WHERE user_id = $1`, listing.UserID); err != nil {
		return err
	}
	if len(listing.Entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(listing.Entries))
	for _, e := range listing.Entries {
		rows = append(rows, []any{listing.UserID, int32(e.DisplayID), e.Reminder.Key, listing.Generation})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"display_ids"},
		[]string{"user_id", "display_id", "reminder_key", "generation"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (p *Postgres) ResolveDisplayID(ctx context.Context, userID int64, generation int64, displayID int) (string, error) {
	const op = "resolve display id"
	if err := p.check(op); err != nil {
		return "", err
	}

	var (
		key     string
		current int64
	)
	err := p.db.Pool.QueryRow(ctx,
		`SELECT reminder_key, generation FROM display_ids WHERE user_id = $1 AND display_id = $2`,
		userID, displayID,
	).Scan(&key, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		if generation == 0 {
			return "", ErrNotFound
		}
		err = p.db.Pool.QueryRow(ctx,
			`SELECT generation FROM display_generations WHERE user_id = $1`,
			userID,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrStaleListing
		}
		if err != nil {
			return "", Unavailable(op, err)
		}
		if current != generation {
			return "", ErrStaleListing
		}
		return "", ErrNotFound
	}
	if err != nil {
		return "", Unavailable(op, err)
	}
	if generation != 0 && current != generation {
		return "", ErrStaleListing
	}
	return key, nil
}
