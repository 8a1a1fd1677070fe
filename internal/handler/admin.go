package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dealership_backend/internal/httputil"
	"dealership_backend/internal/model"
	"dealership_backend/internal/push"
)

// maxAnnouncementBody keeps a push payload well under the 4KB provider limit.
const maxAnnouncementBody = 1000

// EventDispatcher sends a domain event as a notification.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev model.Event) (model.DispatchResult, error)
}

// AppointmentUpdater applies an operator decision to an appointment.
type AppointmentUpdater interface {
	UpdateStatus(ctx context.Context, id int64, req model.UpdateAppointmentStatusRequest) (*model.Appointment, error)
}

type AdminHandler struct {
	dispatcher   EventDispatcher
	appointments AppointmentUpdater
	logger       *zap.Logger
}

func NewAdminHandler(dispatcher EventDispatcher, appointments AppointmentUpdater, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		dispatcher:   dispatcher,
		appointments: appointments,
		logger:       logger.Named("admin_handler"),
	}
}

// Broadcast handles POST /admin/broadcast
// Sends an announcement to every end-user and guest device and reports the
// push outcome. Push problems show up in the counts, never as an error status.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req model.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		httputil.WriteBadRequest(w, "title and body are required")
		return
	}

	if utf8.RuneCountInString(req.Body) > maxAnnouncementBody {
		httputil.WriteBadRequest(w, "body is too long")
		return
	}
	for k := range req.Data {
		if push.ReservedDataKey(k) {
			httputil.WriteBadRequest(w, "data key "+strconv.Quote(k)+" is reserved")
			return
		}
	}

	switch req.Category {
	case "":
		req.Category = model.CategoryGeneral
	case model.CategoryGeneral, model.CategoryService:
	default:
		httputil.WriteBadRequest(w, "category must be GENERAL or SERVICE")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), model.AnnouncementEvent{
		Kind:  req.Category,
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		if errors.Is(err, model.ErrEmptyMessage) || errors.Is(err, model.ErrInvalidRecipients) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("broadcast announcement", zap.String("category", string(req.Category)), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to send announcement")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// UpdateAppointmentStatus handles PATCH /admin/appointments/{id}/status
func (h *AdminHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid appointment ID")
		return
	}

	var req model.UpdateAppointmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Status == "" {
		httputil.WriteBadRequest(w, "status is required")
		return
	}

	appt, err := h.appointments.UpdateStatus(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAppointmentNotFound):
			httputil.WriteNotFound(w, err.Error())
		case errors.Is(err, model.ErrInvalidTransition):
			httputil.WriteConflict(w, err.Error())
		default:
			h.logger.Error("update appointment status", zap.Int64("appointment_id", id), zap.Error(err))
			httputil.WriteInternalError(w, "Failed to update appointment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, appt)
}
