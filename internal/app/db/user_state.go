package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stickychat/internal/app/data"
	"stickychat/internal/app/user"
)

// UserStateRepository persists data.Record values in the user_settings and user_blocks tables.
type UserStateRepository struct {
	pool *pgxpool.Pool
}

// NewUserStateRepository returns a repository over pool.
func NewUserStateRepository(pool *pgxpool.Pool) *UserStateRepository {
	return &UserStateRepository{pool: pool}
}

var _ data.Repository = (*UserStateRepository)(nil)

// Load reads the settings row and the block list for id.
func (r *UserStateRepository) Load(ctx context.Context, id user.ID) (data.Record, bool, error) {
	rec := data.Record{Owner: id, DirectMessagesEnabled: true}

	err := r.pool.QueryRow(ctx,
		`SELECT direct_messages_enabled FROM user_settings WHERE user_id = $1`,
		id,
	).Scan(&rec.DirectMessagesEnabled)

	found := true
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
	} else if err != nil {
		return data.Record{}, false, fmt.Errorf("query user settings: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT blocked_id FROM user_blocks WHERE blocker_id = $1 ORDER BY created_at`,
		id,
	)
	if err != nil {
		return data.Record{}, false, fmt.Errorf("query user blocks: %w", err)
	}

	blocked, err := pgx.CollectRows(rows, pgx.RowTo[user.ID])
	if err != nil {
		return data.Record{}, false, fmt.Errorf("scan user blocks: %w", err)
	}
	rec.Blocked = blocked

	return rec, found || len(blocked) > 0, nil
}

// SetBlocked inserts or deletes the single (owner, target) block row.
func (r *UserStateRepository) SetBlocked(ctx context.Context, owner, target user.ID, blocked bool) error {
	if !blocked {
		if _, err := r.pool.Exec(ctx,
			`DELETE FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2`,
			owner, target,
		); err != nil {
			return fmt.Errorf("delete user block: %w", err)
		}
		return nil
	}

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO user_blocks (blocker_id, blocked_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		owner, target,
	); err != nil {
		if IsCheckViolation(err) {
			return fmt.Errorf("refusing to persist self-block for %s: %w", owner, err)
		}
		return fmt.Errorf("insert user block: %w", err)
	}
	return nil
}

// SetDirectMessages upserts owner's settings row.
func (r *UserStateRepository) SetDirectMessages(ctx context.Context, owner user.ID, enabled bool) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, direct_messages_enabled, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET direct_messages_enabled = EXCLUDED.direct_messages_enabled,
		    updated_at = now()`,
		owner, enabled,
	); err != nil {
		return fmt.Errorf("upsert user settings: %w", err)
	}
	return nil
}

// Delete removes all state stored for id.
func (r *UserStateRepository) Delete(ctx context.Context, id user.ID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_blocks WHERE blocker_id = $1`, id); err != nil {
			return fmt.Errorf("delete user blocks: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_settings WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete user settings: %w", err)
		}
		return nil
	})
}
