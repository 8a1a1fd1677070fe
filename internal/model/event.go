package model

import (
	"time"
)

// Event is a domain event that produces a notification.
// The set of variants is closed; the dispatcher switches over all of them.
type Event interface {
	Category() Category
	isEvent()
}

// RegistrationEvent fires when a new end-user signs up.
type RegistrationEvent struct {
	UserID int64
	Name   string
}

// AppointmentCreatedEvent fires when a customer books an appointment.
type AppointmentCreatedEvent struct {
	AppointmentID int64
	UserID        int64
	CustomerName  string
	ServiceName   string
	ScheduledAt   time.Time
}

// AppointmentDecisionEvent fires when an operator confirms or rejects an appointment.
type AppointmentDecisionEvent struct {
	AppointmentID int64
	UserID        int64
	ServiceName   string
	ScheduledAt   time.Time
	Approved      bool
	Reason        string
}

// BreakdownReportedEvent fires when a customer requests roadside help.
type BreakdownReportedEvent struct {
	BreakdownID  int64
	UserID       int64
	CustomerName string
	Location     string
}

// BreakdownAssignedEvent fires when a technician is assigned to a breakdown.
type BreakdownAssignedEvent struct {
	BreakdownID    int64
	UserID         int64
	TechnicianName string
}

// BreakdownResolvedEvent fires when a breakdown request is closed.
type BreakdownResolvedEvent struct {
	BreakdownID int64
	UserID      int64
}

// ReminderEvent fires from the reminder sweep.
type ReminderEvent struct {
	AppointmentID int64
	UserID        int64
	ServiceName   string
	ScheduledAt   time.Time
	Kind          ReminderKind
}

// AnnouncementEvent is an operator-authored broadcast.
type AnnouncementEvent struct {
	Kind  Category // GENERAL or SERVICE
	Title string
	Body  string
	Data  map[string]string
}

func (RegistrationEvent) Category() Category       { return CategoryRegistration }
func (AppointmentCreatedEvent) Category() Category { return CategoryAppointment }
func (e AppointmentDecisionEvent) Category() Category {
	if e.Approved {
		return CategoryAppointmentApproved
	}
	return CategoryAppointmentRejected
}
func (BreakdownReportedEvent) Category() Category { return CategoryBreakdown }
func (BreakdownAssignedEvent) Category() Category { return CategoryBreakdownAssigned }
func (BreakdownResolvedEvent) Category() Category { return CategoryBreakdownResolved }
func (ReminderEvent) Category() Category          { return CategoryAppointmentReminder }
func (e AnnouncementEvent) Category() Category {
	if e.Kind == CategoryService {
		return CategoryService
	}
	return CategoryGeneral
}

func (RegistrationEvent) isEvent()        {}
func (AppointmentCreatedEvent) isEvent()  {}
func (AppointmentDecisionEvent) isEvent() {}
func (BreakdownReportedEvent) isEvent()   {}
func (BreakdownAssignedEvent) isEvent()   {}
func (BreakdownResolvedEvent) isEvent()   {}
func (ReminderEvent) isEvent()            {}
func (AnnouncementEvent) isEvent()        {}
