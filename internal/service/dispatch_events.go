package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dealership_backend/internal/model"
)

// Screens the mobile and admin apps open when a notification is tapped.
const (
	screenAppointment = "appointment_detail"
	screenBreakdown   = "breakdown_detail"
	screenCustomer    = "customer_detail"
	screenInbox       = "notifications"
)

const displayTimeLayout = "Jan 2, 2006 at 15:04"

// Dispatch maps a domain event to its notification and sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.Event) (model.DispatchResult, error) {
	n, err := NotificationFor(ev)
	if err != nil {
		return model.DispatchResult{}, err
	}
	return d.Notify(ctx, n)
}

// NotificationFor decides recipients, wording and payload for every event variant.
func NotificationFor(ev model.Event) (model.Notification, error) {
	switch e := ev.(type) {
	case model.RegistrationEvent:
		return model.Notification{
			Recipients: model.Operators(),
			Category:   e.Category(),
			Title:      "New customer registration",
			Body:       fmt.Sprintf("%s just created an account.", nameOr(e.Name, "A new customer")),
			Payload: model.Payload{
				"user_id": formatID(e.UserID),
				"screen":  screenCustomer,
			},
		}, nil

	case model.AppointmentCreatedEvent:
		return model.Notification{
			Recipients: model.Operators(),
			Category:   e.Category(),
			Title:      "New appointment request",
			Body: fmt.Sprintf("%s booked %s for %s.",
				nameOr(e.CustomerName, "A customer"), e.ServiceName, e.ScheduledAt.Format(displayTimeLayout)),
			Payload: model.Payload{
				"appointment_id": formatID(e.AppointmentID),
				"user_id":        formatID(e.UserID),
				"screen":         screenAppointment,
			},
		}, nil

	case model.AppointmentDecisionEvent:
		n := model.Notification{
			Recipients: model.OnePrincipal(e.UserID),
			Category:   e.Category(),
			Payload: model.Payload{
				"appointment_id": formatID(e.AppointmentID),
				"screen":         screenAppointment,
			},
		}
		when := e.ScheduledAt.Format(displayTimeLayout)
		if e.Approved {
			n.Title = "Appointment confirmed"
			n.Body = fmt.Sprintf("Your %s appointment on %s is confirmed.", e.ServiceName, when)
		} else {
			n.Title = "Appointment rejected"
			n.Body = fmt.Sprintf("Your %s appointment on %s could not be accepted.", e.ServiceName, when)
			if e.Reason != "" {
				n.Body += " Reason: " + e.Reason
				n.Payload["reason"] = e.Reason
			}
		}
		return n, nil

	case model.BreakdownReportedEvent:
		return model.Notification{
			Recipients: model.Operators(),
			Category:   e.Category(),
			Title:      "Breakdown assistance requested",
			Body:       fmt.Sprintf("%s needs roadside help at %s.", nameOr(e.CustomerName, "A customer"), e.Location),
			Payload: model.Payload{
				"breakdown_id": formatID(e.BreakdownID),
				"user_id":      formatID(e.UserID),
				"screen":       screenBreakdown,
			},
		}, nil

	case model.BreakdownAssignedEvent:
		return model.Notification{
			Recipients: model.OnePrincipal(e.UserID),
			Category:   e.Category(),
			Title:      "Technician on the way",
			Body:       fmt.Sprintf("%s has been assigned to your breakdown request.", nameOr(e.TechnicianName, "A technician")),
			Payload: model.Payload{
				"breakdown_id": formatID(e.BreakdownID),
				"screen":       screenBreakdown,
			},
		}, nil

	case model.BreakdownResolvedEvent:
		return model.Notification{
			Recipients: model.OnePrincipal(e.UserID),
			Category:   e.Category(),
			Title:      "Breakdown request resolved",
			Body:       "Your breakdown request has been closed. Drive safe!",
			Payload: model.Payload{
				"breakdown_id": formatID(e.BreakdownID),
				"screen":       screenBreakdown,
			},
		}, nil

	case model.ReminderEvent:
		title, body := reminderWording(e.Kind, e.ServiceName, e.ScheduledAt)
		return model.Notification{
			Recipients: model.OnePrincipal(e.UserID),
			Category:   e.Category(),
			Title:      title,
			Body:       body,
			Payload: model.Payload{
				"appointment_id": formatID(e.AppointmentID),
				"reminder":       string(e.Kind),
				"screen":         screenAppointment,
			},
		}, nil

	case model.AnnouncementEvent:
		payload := model.Payload(e.Data).Clone()
		payload["screen"] = screenInbox
		return model.Notification{
			Recipients:      model.Broadcast(),
			Category:        e.Category(),
			Title:           e.Title,
			Body:            e.Body,
			Payload:         payload,
			WaitForDelivery: true,
		}, nil
	}

	return model.Notification{}, fmt.Errorf("unsupported event %T", ev)
}

func reminderWording(kind model.ReminderKind, service string, at time.Time) (title, body string) {
	when := at.Format(displayTimeLayout)
	switch kind {
	case model.Reminder24HoursBefore:
		title = "Appointment tomorrow"
		body = fmt.Sprintf("Reminder: your %s appointment is tomorrow, %s.", service, when)
	case model.Reminder1HourBefore:
		title = "Appointment in 1 hour"
		body = fmt.Sprintf("Your %s appointment starts at %s. See you soon!", service, at.Format("15:04"))
	default:
		title = "Upcoming appointment"
		body = fmt.Sprintf("Your %s appointment is on %s.", service, when)
	}
	return
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}
