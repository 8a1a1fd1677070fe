package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dealership_backend/internal/model"
)

type deviceTargetRepository struct {
	db *sqlx.DB
}

func NewDeviceTargetRepository(db *sqlx.DB) DeviceTargetRepository {
	return &deviceTargetRepository{db: db}
}

// RegisterOwned makes token the principal's only target.
// If the token already exists (device changed hands or anonymous device signed in),
// it is reassigned to the principal and its freshness timestamp refreshed.
func (r *deviceTargetRepository) RegisterOwned(ctx context.Context, userID int64, token, platform string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin device target tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_targets WHERE user_id = $1 AND token <> $2`, userID, token); err != nil {
		return fmt.Errorf("drop previous device targets: %w", err)
	}

	query := `
		INSERT INTO device_targets (user_id, token, platform, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query, userID, token, platform); err != nil {
		return fmt.Errorf("upsert device target: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit device target tx: %w", err)
	}
	return nil
}

// RegisterAnonymous creates an ownerless target or refreshes an existing one.
// An owned row is left with its owner; sign-out is what clears ownership.
func (r *deviceTargetRepository) RegisterAnonymous(ctx context.Context, token, platform string) error {
	query := `
		INSERT INTO device_targets (user_id, token, platform, updated_at)
		VALUES (NULL, $1, $2, NOW())
		ON CONFLICT (token) DO UPDATE SET
			platform = EXCLUDED.platform,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, token, platform); err != nil {
		return fmt.Errorf("upsert anonymous device target: %w", err)
	}
	return nil
}

// ListByUserIDs returns all targets owned by the given principals.
func (r *deviceTargetRepository) ListByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceTarget, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, token, platform, created_at, updated_at
		FROM device_targets
		WHERE user_id = ANY($1)
		ORDER BY updated_at DESC
	`
	var targets []model.DeviceTarget
	if err := r.db.SelectContext(ctx, &targets, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("list device targets: %w", err)
	}
	return targets, nil
}

// ListAnonymous returns every ownerless target.
func (r *deviceTargetRepository) ListAnonymous(ctx context.Context) ([]model.DeviceTarget, error) {
	query := `
		SELECT id, user_id, token, platform, created_at, updated_at
		FROM device_targets
		WHERE user_id IS NULL
		ORDER BY id
	`
	var targets []model.DeviceTarget
	if err := r.db.SelectContext(ctx, &targets, query); err != nil {
		return nil, fmt.Errorf("list anonymous device targets: %w", err)
	}
	return targets, nil
}

// DeleteIfStale removes the token only when its updated_at is still the value
// read before the send. Any upsert since then moves updated_at, so a
// re-registration racing with a failed send survives. Both sides come from the
// database clock.
func (r *deviceTargetRepository) DeleteIfStale(ctx context.Context, token string, readAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM device_targets WHERE token = $1 AND updated_at = $2`, token, readAt)
	if err != nil {
		return false, fmt.Errorf("delete stale device target: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteOwned removes a device target held by owner. Guests can only remove
// guest targets.
func (r *deviceTargetRepository) DeleteOwned(ctx context.Context, owner *int64, token string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if owner != nil {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM device_targets WHERE token = $1 AND user_id = $2`, token, *owner)
	} else {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM device_targets WHERE token = $1 AND user_id IS NULL`, token)
	}
	if err != nil {
		return false, fmt.Errorf("delete device target: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByUser removes every target owned by the principal.
func (r *deviceTargetRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM device_targets WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user device targets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
