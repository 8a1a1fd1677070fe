package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"dealership_backend/internal/model"
)

type appointmentRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

// GetByID retrieves an appointment by its ID
func (r *appointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `
		SELECT id, user_id, service_name, scheduled_at, status, updated_at
		FROM appointments
		WHERE id = $1
	`
	var a model.Appointment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &a, nil
}

// UpdateStatus is a compare-and-set on status so two operators racing on the
// same appointment cannot both win a transition.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id, user_id, service_name, scheduled_at, status, updated_at
	`
	var a model.Appointment
	if err := r.db.GetContext(ctx, &a, query, id, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return &a, nil
}
