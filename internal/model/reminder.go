package model

import (
	"time"
)

// ReminderKind names a fixed offset before an appointment.
type ReminderKind string

const (
	Reminder24HoursBefore ReminderKind = "24_HOURS_BEFORE"
	Reminder1HourBefore   ReminderKind = "1_HOUR_BEFORE"
)

// ReminderEntry is a future-dated reminder tied to an appointment.
// SentAt nil means PENDING; once set it is never cleared.
type ReminderEntry struct {
	ID            int64        `db:"id" json:"id"`
	AppointmentID int64        `db:"appointment_id" json:"appointment_id"`
	Kind          ReminderKind `db:"kind" json:"kind"`
	ScheduledFor  time.Time    `db:"scheduled_for" json:"scheduled_for"`
	SentAt        *time.Time   `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Pending reports whether the entry has not been sent yet.
func (e ReminderEntry) Pending() bool {
	return e.SentAt == nil
}

// Due reports whether a pending entry's scheduled time is at or before now.
func (e ReminderEntry) Due(now time.Time) bool {
	return e.Pending() && !e.ScheduledFor.After(now)
}
