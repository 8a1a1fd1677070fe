package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dealership_backend/internal/model"
)

const (
	userInboxTable     = "notifications"
	operatorInboxTable = "admin_notifications"
)

// inboxRepository serves both inbox flavors. They share a shape and differ
// only in table name and whether operator-wide rows (recipient_id IS NULL)
// are visible to every recipient.
type inboxRepository struct {
	db           *sqlx.DB
	table        string
	includeShare bool
}

// NewUserInboxRepository returns the end-user notification store.
func NewUserInboxRepository(db *sqlx.DB) UserInboxRepository {
	return &inboxRepository{db: db, table: userInboxTable}
}

// NewOperatorInboxRepository returns the operator-facing admin alert store.
func NewOperatorInboxRepository(db *sqlx.DB) InboxRepository {
	return &inboxRepository{db: db, table: operatorInboxTable, includeShare: true}
}

func (r *inboxRepository) visibleTo() string {
	if r.includeShare {
		return "(recipient_id = $1 OR recipient_id IS NULL)"
	}
	return "recipient_id = $1"
}

type inboxWriter struct {
	db *sqlx.DB
}

// NewInboxWriter returns the transactional writer shared by both inbox flavors.
func NewInboxWriter(db *sqlx.DB) InboxWriter {
	return &inboxWriter{db: db}
}

// Write inserts the whole batch inside a single transaction.
func (w *inboxWriter) Write(ctx context.Context, batch InboxBatch) (InboxBatch, error) {
	if batch.Len() == 0 {
		return batch, nil
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return InboxBatch{}, fmt.Errorf("begin inbox tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var out InboxBatch
	if out.User, err = insertRecords(ctx, tx, userInboxTable, batch.User); err != nil {
		return InboxBatch{}, err
	}
	if out.Operator, err = insertRecords(ctx, tx, operatorInboxTable, batch.Operator); err != nil {
		return InboxBatch{}, err
	}

	if err := tx.Commit(); err != nil {
		return InboxBatch{}, fmt.Errorf("commit inbox tx: %w", err)
	}
	return out, nil
}

func insertRecords(ctx context.Context, tx *sqlx.Tx, table string, records []model.InboxRecord) ([]model.InboxRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (recipient_id, category, title, body, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at
	`, table)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	out := make([]model.InboxRecord, len(records))
	for i, rec := range records {
		if rec.Payload == nil {
			rec.Payload = model.Payload{}
		}
		err := stmt.QueryRowxContext(ctx, rec.RecipientID, rec.Category, rec.Title, rec.Body, rec.Payload).
			Scan(&rec.ID, &rec.IsRead, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", table, err)
		}
		out[i] = rec
	}
	return out, nil
}

// List returns the newest records visible to the recipient.
func (r *inboxRepository) List(ctx context.Context, recipientID int64, limit int, unreadOnly bool) ([]model.InboxRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, recipient_id, category, title, body, payload, is_read, created_at
		FROM %s
		WHERE %s AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, r.table, r.visibleTo())

	records := []model.InboxRecord{}
	if err := r.db.SelectContext(ctx, &records, query, recipientID, unreadOnly, limit); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return records, nil
}

// UnreadCount returns the count of unread records.
func (r *inboxRepository) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s AND is_read = false`, r.table, r.visibleTo())

	var count int
	err := r.db.GetContext(ctx, &count, query, recipientID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("unread count %s: %w", r.table, err)
	}
	return count, nil
}

// MarkAsRead marks specific records as read. Only the read flag is ever updated.
func (r *inboxRepository) MarkAsRead(ctx context.Context, recipientID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_read = true
		WHERE %s AND id = ANY($2) AND is_read = false
	`, r.table, r.visibleTo())

	res, err := r.db.ExecContext(ctx, query, recipientID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark %s as read: %w", r.table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkAllAsRead marks every unread record visible to the recipient as read.
func (r *inboxRepository) MarkAllAsRead(ctx context.Context, recipientID int64) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_read = true
		WHERE %s AND is_read = false
	`, r.table, r.visibleTo())

	res, err := r.db.ExecContext(ctx, query, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all %s as read: %w", r.table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Delete removes a record owned by the recipient.
func (r *inboxRepository) Delete(ctx context.Context, recipientID, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND recipient_id = $2`, r.table)

	res, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotificationNotFound
	}
	return nil
}
