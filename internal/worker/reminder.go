package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/metrics"
	"dealership_backend/internal/model"
	"dealership_backend/internal/repository"
)

const (
	DefaultSweepInterval   = 15 * time.Minute
	DefaultLookahead       = 5 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	DefaultRetention       = 7 * 24 * time.Hour

	// DefaultSweepLimit caps how many entries one tick processes
	DefaultSweepLimit = 500
)

// Offset is one reminder fired a fixed duration before the appointment.
type Offset struct {
	Kind   model.ReminderKind
	Before time.Duration
}

// DefaultOffsets are the reminders every confirmed appointment gets.
var DefaultOffsets = []Offset{
	{Kind: model.Reminder24HoursBefore, Before: 24 * time.Hour},
	{Kind: model.Reminder1HourBefore, Before: time.Hour},
}

// EventDispatcher sends a domain event as a notification.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev model.Event) (model.DispatchResult, error)
}

// SchedulerConfig holds the sweep and cleanup timing.
type SchedulerConfig struct {
	SweepInterval   time.Duration
	Lookahead       time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
	SweepLimit      int
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Fired   int
	Skipped int
	Failed  int
}

// Scheduler persists reminder entries and fires them when due.
// Each entry moves PENDING -> SENT exactly once through a conditional update,
// so overlapping or repeated sweeps never fire an entry twice.
type Scheduler struct {
	reminders    repository.ReminderRepository
	appointments repository.AppointmentRepository
	dispatcher   EventDispatcher
	cfg          SchedulerConfig
	offsets      []Offset
	logger       *zap.Logger
	now          func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(
	reminders repository.ReminderRepository,
	appointments repository.AppointmentRepository,
	dispatcher EventDispatcher,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = DefaultSweepLimit
	}

	return &Scheduler{
		reminders:    reminders,
		appointments: appointments,
		dispatcher:   dispatcher,
		cfg:          cfg,
		offsets:      DefaultOffsets,
		logger:       logger.Named("reminder_scheduler"),
		now:          time.Now,
	}
}

// Schedule creates one PENDING entry per offset that still lies in the future.
// Calling it again for the same appointment creates nothing new.
func (s *Scheduler) Schedule(ctx context.Context, appointmentID int64, appointmentTime time.Time) (int, error) {
	now := s.now()

	entries := make([]model.ReminderEntry, 0, len(s.offsets))
	for _, off := range s.offsets {
		at := appointmentTime.Add(-off.Before)
		if !at.After(now) {
			continue
		}
		entries = append(entries, model.ReminderEntry{
			AppointmentID: appointmentID,
			Kind:          off.Kind,
			ScheduledFor:  at,
		})
	}
	if len(entries) == 0 {
		s.logger.Info("no reminders to schedule: every offset already passed",
			zap.Int64("appointment_id", appointmentID), zap.Time("appointment_time", appointmentTime))
		return 0, nil
	}

	created, err := s.reminders.CreatePending(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("schedule reminders for appointment %d: %w", appointmentID, err)
	}

	s.logger.Info("reminders scheduled",
		zap.Int64("appointment_id", appointmentID),
		zap.Int("created", created),
		zap.Int("offsets", len(entries)))
	return created, nil
}

// Sweep fires every PENDING entry scheduled before now+lookahead. There is no
// lower bound, so a tick that runs late still picks up what it missed.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now()

	entries, err := s.reminders.ListPendingBefore(ctx, now.Add(s.cfg.Lookahead), s.cfg.SweepLimit)
	if err != nil {
		return stats, fmt.Errorf("list due reminders: %w", err)
	}

	for _, e := range entries {
		switch s.processEntry(ctx, e, now) {
		case outcomeFired:
			stats.Fired++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFailed:
			stats.Failed++
		}
	}

	if len(entries) > 0 {
		s.logger.Info("reminder sweep done",
			zap.Int("due", len(entries)),
			zap.Int("fired", stats.Fired),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

type outcome int

const (
	outcomeNone outcome = iota // another sweep claimed it
	outcomeFired
	outcomeSkipped
	outcomeFailed
)

// processEntry handles one entry. A panic or error here never reaches the
// rest of the sweep.
func (s *Scheduler) processEntry(ctx context.Context, e model.ReminderEntry, now time.Time) (out outcome) {
	log := s.logger.With(
		zap.Int64("reminder_id", e.ID),
		zap.Int64("appointment_id", e.AppointmentID),
		zap.String("kind", string(e.Kind)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("reminder panicked", zap.Any("panic", r))
			out = outcomeFailed
		}
		if out != outcomeNone {
			metrics.RemindersProcessed.WithLabelValues(out.label()).Inc()
		}
	}()

	appt, err := s.appointments.GetByID(ctx, e.AppointmentID)
	if err != nil && !errors.Is(err, model.ErrAppointmentNotFound) {
		// Store trouble: leave the entry PENDING for the next tick
		log.Error("load appointment for reminder", zap.Error(err))
		return outcomeFailed
	}

	if appt == nil || appt.Status != model.AppointmentConfirmed || !appt.ScheduledAt.After(now) {
		won, err := s.reminders.MarkSent(ctx, e.ID, now)
		if err != nil {
			log.Error("mark skipped reminder", zap.Error(err))
			return outcomeFailed
		}
		if !won {
			return outcomeNone
		}
		log.Info("reminder skipped: appointment no longer eligible")
		return outcomeSkipped
	}

	// Claim before sending so a concurrent sweep cannot fire it too
	won, err := s.reminders.MarkSent(ctx, e.ID, now)
	if err != nil {
		log.Error("claim reminder", zap.Error(err))
		return outcomeFailed
	}
	if !won {
		return outcomeNone
	}

	_, err = s.dispatcher.Dispatch(ctx, model.ReminderEvent{
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		ServiceName:   appt.ServiceName,
		ScheduledAt:   appt.ScheduledAt,
		Kind:          e.Kind,
	})
	if err != nil {
		// Scheduling is not retried; the entry stays SENT
		log.Warn("reminder dispatch failed", zap.Int64("user_id", appt.UserID), zap.Error(err))
		return outcomeFailed
	}
	return outcomeFired
}

func (o outcome) label() string {
	switch o {
	case outcomeFired:
		return "fired"
	case outcomeSkipped:
		return "skipped"
	}
	return "failed"
}

// Cleanup deletes SENT entries scheduled before now-retention.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.reminders.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup reminders: %w", err)
	}
	if n > 0 {
		s.logger.Info("old reminders removed", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start runs the sweep and cleanup loops until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "sweep", s.cfg.SweepInterval, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
	go s.loop(ctx, "cleanup", s.cfg.CleanupInterval, func(ctx context.Context) error {
		_, err := s.Cleanup(ctx)
		return err
	})

	s.logger.Info("reminder scheduler started",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("lookahead", s.cfg.Lookahead),
		zap.Duration("cleanup_interval", s.cfg.CleanupInterval),
		zap.Duration("retention", s.cfg.Retention))
}

// Stop cancels both loops and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Catch up on anything that came due while the process was down
	s.runTick(ctx, name, tick)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx, name, tick)
		}
	}
}

// runTick keeps a failing or panicking tick from taking the loop down.
func (s *Scheduler) runTick(ctx context.Context, name string, tick func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", zap.String("tick", name), zap.Any("panic", r))
		}
	}()

	if err := tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler tick failed", zap.String("tick", name), zap.Error(err))
	}
}
