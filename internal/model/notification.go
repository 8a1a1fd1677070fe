package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Category classifies an inbox record. It never changes after creation.
type Category string

const (
	CategoryRegistration        Category = "REGISTRATION"
	CategoryAppointment         Category = "APPOINTMENT"
	CategoryAppointmentApproved Category = "APPOINTMENT_APPROVED"
	CategoryAppointmentRejected Category = "APPOINTMENT_REJECTED"
	CategoryAppointmentReminder Category = "APPOINTMENT_REMINDER"
	CategoryBreakdown           Category = "BREAKDOWN"
	CategoryBreakdownAssigned   Category = "BREAKDOWN_ASSIGNED"
	CategoryBreakdownResolved   Category = "BREAKDOWN_RESOLVED"
	CategoryService             Category = "SERVICE"
	CategoryGeneral             Category = "GENERAL"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryRegistration, CategoryAppointment, CategoryAppointmentApproved,
		CategoryAppointmentRejected, CategoryAppointmentReminder, CategoryBreakdown,
		CategoryBreakdownAssigned, CategoryBreakdownResolved, CategoryService, CategoryGeneral:
		return true
	}
	return false
}

// Audience selects which inbox a record lives in.
type Audience string

const (
	AudienceUser     Audience = "user"     // notifications table
	AudienceOperator Audience = "operator" // admin_notifications table
)

// Payload is the free-form key/value data attached to a record.
// Stored as JSONB.
type Payload map[string]string

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported type %T", src)
	}
	out := Payload{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	*p = out
	return nil
}

// Clone returns a copy that is safe to hand to another goroutine.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// InboxRecord is a persisted notification. Operator alerts and end-user
// notifications share this shape; RecipientID is nil for operator-wide alerts.
type InboxRecord struct {
	ID          int64     `db:"id" json:"id"`
	RecipientID *int64    `db:"recipient_id" json:"recipient_id,omitempty"`
	Category    Category  `db:"category" json:"category"`
	Title       string    `db:"title" json:"title"`
	Body        string    `db:"body" json:"body"`
	Payload     Payload   `db:"payload" json:"payload"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// InboxListResponse is the paginated inbox list response.
type InboxListResponse struct {
	Items       []InboxRecord `json:"items"`
	UnreadCount int           `json:"unread_count"`
}

// MarkReadRequest is the request body for marking records as read.
type MarkReadRequest struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

// BroadcastRequest is the operator announcement request body.
type BroadcastRequest struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Category Category          `json:"category"`
	Data     map[string]string `json:"data"`
}

var (
	// ErrNotificationNotFound is returned when a record does not exist or is not owned by the caller
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidRecipients is returned when a recipient set resolves to nothing usable
	ErrInvalidRecipients = errors.New("invalid recipient set")

	// ErrEmptyMessage is returned when a notification has no title or body
	ErrEmptyMessage = errors.New("notification title and body are required")
)
