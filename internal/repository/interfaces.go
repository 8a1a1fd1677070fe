package repository

import (
	"context"
	"time"

	"dealership_backend/internal/model"
)

// InboxBatch holds the records of one dispatch, split by inbox flavor.
type InboxBatch struct {
	User     []model.InboxRecord
	Operator []model.InboxRecord
}

// Len returns the total number of records in the batch.
func (b InboxBatch) Len() int {
	return len(b.User) + len(b.Operator)
}

type InboxWriter interface {
	// Write inserts every record of both flavors in one transaction and fills
	// ID, IsRead and CreatedAt. Either every record is written or none is.
	Write(ctx context.Context, batch InboxBatch) (InboxBatch, error)
}

type InboxRepository interface {
	// List returns the newest records visible to recipientID
	List(ctx context.Context, recipientID int64, limit int, unreadOnly bool) ([]model.InboxRecord, error)
	// UnreadCount returns the count of unread records visible to recipientID
	UnreadCount(ctx context.Context, recipientID int64) (int, error)
	// MarkAsRead flips the read flag on the given records
	MarkAsRead(ctx context.Context, recipientID int64, ids []int64) (int64, error)
	// MarkAllAsRead flips the read flag on every unread record visible to recipientID
	MarkAllAsRead(ctx context.Context, recipientID int64) (int64, error)
}

// UserInboxRepository is the end-user flavor; only it supports delete-by-owner.
type UserInboxRepository interface {
	InboxRepository
	Delete(ctx context.Context, recipientID, id int64) error
}

type DeviceTargetRepository interface {
	// RegisterOwned makes token the principal's single active target (last write wins)
	RegisterOwned(ctx context.Context, userID int64, token, platform string) error
	// RegisterAnonymous creates or refreshes an ownerless target
	RegisterAnonymous(ctx context.Context, token, platform string) error
	// ListByUserIDs returns the targets owned by any of the given principals
	ListByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceTarget, error)
	// ListAnonymous returns every ownerless target
	ListAnonymous(ctx context.Context) ([]model.DeviceTarget, error)
	// DeleteIfStale removes token only if updated_at still equals readAt, the
	// value loaded before the send
	DeleteIfStale(ctx context.Context, token string, readAt time.Time) (bool, error)
	// Delete removes a token unconditionally
	// DeleteOwned removes token only when owner matches its owner; a nil
	// owner matches anonymous targets only
	DeleteOwned(ctx context.Context, owner *int64, token string) (bool, error)
	// DeleteByUser removes every target owned by the principal (sign-out)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type ReminderRepository interface {
	// CreatePending inserts entries, ignoring (appointment, kind) pairs that already exist
	CreatePending(ctx context.Context, entries []model.ReminderEntry) (int, error)
	// ListPendingBefore returns PENDING entries scheduled strictly before the cutoff
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.ReminderEntry, error)
	// MarkSent sets sent_at only if the entry is still PENDING; reports whether it won
	MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error)
	// DeleteSentBefore removes SENT entries scheduled before the cutoff
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// ListByAppointment returns every entry of an appointment
	ListByAppointment(ctx context.Context, appointmentID int64) ([]model.ReminderEntry, error)
}

type AppointmentRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	// UpdateStatus moves from -> to atomically; returns ErrInvalidTransition if the row moved on
	UpdateStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) (*model.Appointment, error)
}

type PrincipalRepository interface {
	// GetRoles returns the role of each known, active principal
	GetRoles(ctx context.Context, ids []int64) (map[int64]model.Role, error)
	// ListActiveCustomerIDs returns every active end-user
	ListActiveCustomerIDs(ctx context.Context) ([]int64, error)
	// ListOperatorIDs returns every active operator-class principal
	ListOperatorIDs(ctx context.Context) ([]int64, error)
}
