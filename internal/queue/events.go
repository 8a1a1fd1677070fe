package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"dealership_backend/internal/model"
)

// Event types for the notification stream
const (
	EventRegistration       = "registration"
	EventAppointmentCreated = "appointment_created"
	EventAppointmentDecided = "appointment_decided"
	EventBreakdownReported  = "breakdown_reported"
	EventBreakdownAssigned  = "breakdown_assigned"
	EventBreakdownResolved  = "breakdown_resolved"
)

// Stream names
const (
	StreamNotifications = "stream:notifications"
)

// Consumer group name for notification workers
const (
	ConsumerGroupNotifications = "notification_workers"
)

// NotificationEvent is the wire form of a business event on the stream.
// Only the fields of its Type are set.
type NotificationEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	UserID        int64 `json:"user_id,omitempty"`
	AppointmentID int64 `json:"appointment_id,omitempty"`
	BreakdownID   int64 `json:"breakdown_id,omitempty"`

	Name        string `json:"name,omitempty"` // customer or technician
	ServiceName string `json:"service_name,omitempty"`
	ScheduledAt int64  `json:"scheduled_at,omitempty"`
	Approved    bool   `json:"approved,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Location    string `json:"location,omitempty"`
}

// FromDomain converts a business event for publishing. Reminders and
// announcements are dispatched in-process and never travel on the stream.
func FromDomain(ev model.Event) (NotificationEvent, error) {
	out := NotificationEvent{Timestamp: time.Now().Unix()}

	switch e := ev.(type) {
	case model.RegistrationEvent:
		out.Type = EventRegistration
		out.UserID = e.UserID
		out.Name = e.Name
	case model.AppointmentCreatedEvent:
		out.Type = EventAppointmentCreated
		out.AppointmentID = e.AppointmentID
		out.UserID = e.UserID
		out.Name = e.CustomerName
		out.ServiceName = e.ServiceName
		out.ScheduledAt = e.ScheduledAt.Unix()
	case model.AppointmentDecisionEvent:
		out.Type = EventAppointmentDecided
		out.AppointmentID = e.AppointmentID
		out.UserID = e.UserID
		out.ServiceName = e.ServiceName
		out.ScheduledAt = e.ScheduledAt.Unix()
		out.Approved = e.Approved
		out.Reason = e.Reason
	case model.BreakdownReportedEvent:
		out.Type = EventBreakdownReported
		out.BreakdownID = e.BreakdownID
		out.UserID = e.UserID
		out.Name = e.CustomerName
		out.Location = e.Location
	case model.BreakdownAssignedEvent:
		out.Type = EventBreakdownAssigned
		out.BreakdownID = e.BreakdownID
		out.UserID = e.UserID
		out.Name = e.TechnicianName
	case model.BreakdownResolvedEvent:
		out.Type = EventBreakdownResolved
		out.BreakdownID = e.BreakdownID
		out.UserID = e.UserID
	default:
		return NotificationEvent{}, fmt.Errorf("event %T is not published on the stream", ev)
	}
	return out, nil
}

// ToDomain converts a consumed event back into its typed form.
func (e NotificationEvent) ToDomain() (model.Event, error) {
	scheduled := time.Unix(e.ScheduledAt, 0)

	switch e.Type {
	case EventRegistration:
		return model.RegistrationEvent{UserID: e.UserID, Name: e.Name}, nil
	case EventAppointmentCreated:
		return model.AppointmentCreatedEvent{
			AppointmentID: e.AppointmentID,
			UserID:        e.UserID,
			CustomerName:  e.Name,
			ServiceName:   e.ServiceName,
			ScheduledAt:   scheduled,
		}, nil
	case EventAppointmentDecided:
		return model.AppointmentDecisionEvent{
			AppointmentID: e.AppointmentID,
			UserID:        e.UserID,
			ServiceName:   e.ServiceName,
			ScheduledAt:   scheduled,
			Approved:      e.Approved,
			Reason:        e.Reason,
		}, nil
	case EventBreakdownReported:
		return model.BreakdownReportedEvent{
			BreakdownID:  e.BreakdownID,
			UserID:       e.UserID,
			CustomerName: e.Name,
			Location:     e.Location,
		}, nil
	case EventBreakdownAssigned:
		return model.BreakdownAssignedEvent{BreakdownID: e.BreakdownID, UserID: e.UserID, TechnicianName: e.Name}, nil
	case EventBreakdownResolved:
		return model.BreakdownResolvedEvent{BreakdownID: e.BreakdownID, UserID: e.UserID}, nil
	}
	return nil, fmt.Errorf("unknown event type: %s", e.Type)
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e NotificationEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseNotificationEvent parses an event from Redis stream message values.
func ParseNotificationEvent(values map[string]interface{}) (NotificationEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return NotificationEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event NotificationEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return NotificationEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
