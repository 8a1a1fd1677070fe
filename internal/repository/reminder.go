package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"dealership_backend/internal/model"
)

type reminderRepository struct {
	db *sqlx.DB
}

func NewReminderRepository(db *sqlx.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

// CreatePending inserts PENDING entries. The (appointment_id, kind) unique
// constraint makes repeated scheduling a no-op.
func (r *reminderRepository) CreatePending(ctx context.Context, entries []model.ReminderEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reminder tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO appointment_reminders (appointment_id, kind, scheduled_for)
		VALUES ($1, $2, $3)
		ON CONFLICT (appointment_id, kind) DO NOTHING
	`
	created := 0
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, query, e.AppointmentID, e.Kind, e.ScheduledFor)
		if err != nil {
			return 0, fmt.Errorf("insert reminder: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reminder tx: %w", err)
	}
	return created, nil
}

// ListPendingBefore returns PENDING entries with scheduled_for < cutoff, oldest first.
func (r *reminderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ReminderEntry, error) {
	query := `
		SELECT id, appointment_id, kind, scheduled_for, sent_at, created_at
		FROM appointment_reminders
		WHERE sent_at IS NULL AND scheduled_for < $1
		ORDER BY scheduled_for
		LIMIT $2
	`
	var entries []model.ReminderEntry
	if err := r.db.SelectContext(ctx, &entries, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	return entries, nil
}

// MarkSent is the idempotent marker: it only touches a still-PENDING row.
func (r *reminderRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointment_reminders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, sentAt)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// DeleteSentBefore removes SENT entries older than the cutoff. PENDING entries are never touched.
func (r *reminderRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM appointment_reminders WHERE sent_at IS NOT NULL AND scheduled_for < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sent reminders: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListByAppointment returns every reminder entry of an appointment.
func (r *reminderRepository) ListByAppointment(ctx context.Context, appointmentID int64) ([]model.ReminderEntry, error) {
	query := `
		SELECT id, appointment_id, kind, scheduled_for, sent_at, created_at
		FROM appointment_reminders
		WHERE appointment_id = $1
		ORDER BY scheduled_for
	`
	var entries []model.ReminderEntry
	if err := r.db.SelectContext(ctx, &entries, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list appointment reminders: %w", err)
	}
	return entries, nil
}
