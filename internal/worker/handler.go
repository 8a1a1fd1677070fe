package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/queue"
)

// Handler turns stream events into notifications.
type Handler struct {
	dispatcher EventDispatcher
	logger     *zap.Logger
}

// NewHandler creates a new event handler.
func NewHandler(dispatcher EventDispatcher, logger *zap.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, logger: logger.Named("event_handler")}
}

// HandleEvent decodes the event and dispatches it. An unknown type is an
// error; the manager still acknowledges it so it is not redelivered forever.
func (h *Handler) HandleEvent(ctx context.Context, event queue.NotificationEvent) error {
	startTime := time.Now()

	ev, err := event.ToDomain()
	if err != nil {
		return err
	}

	res, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", event.Type, err)
	}

	h.logger.Debug("event handled",
		zap.String("type", event.Type),
		zap.Int("records", res.RecordsWritten),
		zap.Bool("push_queued", res.PushQueued),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}
