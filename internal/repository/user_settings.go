package repository

import (
	"context"

	"github.com/hray3182/nudge/internal/models"
)

// GetTimezone returns the user's zone, creating the default row on first use.
func (p *Postgres) GetTimezone(ctx context.Context, userID int64) (string, error) {
	const op = "get timezone"
	if err := p.check(op); err != nil {
		return "", err
	}
	var zone string
	err := p.db.Pool.QueryRow(ctx,
		`INSERT INTO user_settings (user_id, timezone) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING timezone`,
		userID, models.DefaultTimezone,
	).Scan(&zone)
	if err != nil {
		return "", Unavailable(op, err)
	}
	return zone, nil
}

func (p *Postgres) SetTimezone(ctx context.Context, userID int64, zone string) error {
	const op = "set timezone"
	if err := p.check(op); err != nil {
		return err
	}
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, timezone) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET timezone = EXCLUDED.timezone`,
		userID, zone,
	)
	return Unavailable(op, err)
}
