package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/model"
	"dealership_backend/internal/repository"
)

// EventPublisher puts an event on the notification stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev model.Event) (string, error)
}

// EventDispatcher turns an event into a notification in-process.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev model.Event) (model.DispatchResult, error)
}

// ReminderScheduler persists the reminders of a confirmed appointment.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appointmentID int64, appointmentTime time.Time) (int, error)
}

// EventTrigger is the call site business logic uses to announce a transition.
// With a publisher the event goes through the stream workers; without one, or
// when publishing fails, it is dispatched in-process.
type EventTrigger struct {
	publisher  EventPublisher
	dispatcher EventDispatcher
	logger     *zap.Logger
}

// NewEventTrigger builds a trigger. publisher may be nil.
func NewEventTrigger(publisher EventPublisher, dispatcher EventDispatcher, logger *zap.Logger) *EventTrigger {
	return &EventTrigger{
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger.Named("event_trigger"),
	}
}

// Fire hands ev to the notification core. The returned error means the inbox
// record could not be written.
func (t *EventTrigger) Fire(ctx context.Context, ev model.Event) error {
	if t.publisher != nil {
		id, err := t.publisher.PublishEvent(ctx, ev)
		if err == nil {
			t.logger.Debug("event published", zap.String("message_id", id), zap.String("category", string(ev.Category())))
			return nil
		}
		t.logger.Warn("publish event failed, dispatching in-process",
			zap.String("category", string(ev.Category())), zap.Error(err))
	}

	if _, err := t.dispatcher.Dispatch(ctx, ev); err != nil {
		return fmt.Errorf("dispatch %s: %w", ev.Category(), err)
	}
	return nil
}

// AppointmentService applies operator decisions to appointments.
type AppointmentService struct {
	appointments repository.AppointmentRepository
	trigger      *EventTrigger
	scheduler    ReminderScheduler
	logger       *zap.Logger
}

func NewAppointmentService(
	appointments repository.AppointmentRepository,
	trigger *EventTrigger,
	scheduler ReminderScheduler,
	logger *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		appointments: appointments,
		trigger:      trigger,
		scheduler:    scheduler,
		logger:       logger.Named("appointment_service"),
	}
}

// UpdateStatus moves an appointment to req.Status. A confirmation notifies
// the customer and schedules its reminders; a rejection notifies with the reason.
// Notification and scheduling problems are logged and never undo the status change.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id int64, req model.UpdateAppointmentStatusRequest) (*model.Appointment, error) {
	next := model.AppointmentStatus(strings.ToUpper(string(req.Status)))

	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, next)
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, current.Status, next)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.Int64("appointment_id", id), zap.String("status", string(next)))

	switch next {
	case model.AppointmentConfirmed:
		s.fire(ctx, log, model.AppointmentDecisionEvent{
			AppointmentID: updated.ID,
			UserID:        updated.UserID,
			ServiceName:   updated.ServiceName,
			ScheduledAt:   updated.ScheduledAt,
			Approved:      true,
		})
		if _, err := s.scheduler.Schedule(ctx, updated.ID, updated.ScheduledAt); err != nil {
			log.Error("schedule reminders", zap.Error(err))
		}
	case model.AppointmentRejected:
		s.fire(ctx, log, model.AppointmentDecisionEvent{
			AppointmentID: updated.ID,
			UserID:        updated.UserID,
			ServiceName:   updated.ServiceName,
			ScheduledAt:   updated.ScheduledAt,
			Reason:        strings.TrimSpace(req.Reason),
		})
	}

	log.Info("appointment status updated", zap.String("from", string(current.Status)))
	return updated, nil
}

func (s *AppointmentService) fire(ctx context.Context, log *zap.Logger, ev model.AppointmentDecisionEvent) {
	if err := s.trigger.Fire(ctx, ev); err != nil {
		log.Error("appointment notification failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}
