package model

import (
	"errors"
	"time"
)

// AppointmentStatus is the lifecycle state of a service appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentRejected  AppointmentStatus = "REJECTED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
)

// Appointment is the subset of the appointment row the notification core reads.
type Appointment struct {
	ID          int64             `db:"id" json:"id"`
	UserID      int64             `db:"user_id" json:"user_id"`
	ServiceName string            `db:"service_name" json:"service_name"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Status      AppointmentStatus `db:"status" json:"status"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// CanTransition reports whether moving from s to next is allowed.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	switch s {
	case AppointmentPending:
		return next == AppointmentConfirmed || next == AppointmentRejected || next == AppointmentCancelled
	case AppointmentConfirmed:
		return next == AppointmentCancelled || next == AppointmentCompleted
	}
	return false
}

// UpdateAppointmentStatusRequest is the operator request body for a status change.
type UpdateAppointmentStatusRequest struct {
	Status AppointmentStatus `json:"status"`
	Reason string            `json:"reason"`
}

var (
	// ErrAppointmentNotFound is returned when an appointment cannot be found
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrInvalidTransition is returned for a disallowed status change
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)
