package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dealership_backend/internal/httputil"
	"dealership_backend/internal/model"
	"dealership_backend/internal/transport/http/middleware"
)

// InboxService is the read side of an inbox.
type InboxService interface {
	List(ctx context.Context, audience model.Audience, recipientID int64, limit int, unreadOnly bool) (*model.InboxListResponse, error)
	UnreadCount(ctx context.Context, audience model.Audience, recipientID int64) (int, error)
	MarkAsRead(ctx context.Context, audience model.Audience, recipientID int64, ids []int64) (int64, error)
	MarkAllAsRead(ctx context.Context, audience model.Audience, recipientID int64) (int64, error)
	Delete(ctx context.Context, recipientID, id int64) error
}

// NotificationHandler serves one inbox. The same handler type backs the
// end-user inbox and the operator alert inbox.
type NotificationHandler struct {
	notifService InboxService
	audience     model.Audience
	logger       *zap.Logger
}

// NewNotificationHandler serves the end-user inbox.
func NewNotificationHandler(notifService InboxService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
		audience:     model.AudienceUser,
		logger:       logger.Named("notification_handler"),
	}
}

// NewAdminNotificationHandler serves the operator alert inbox.
func NewAdminNotificationHandler(notifService InboxService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
		audience:     model.AudienceOperator,
		logger:       logger.Named("admin_notification_handler"),
	}
}

// List handles GET /notifications and GET /admin/notifications
// Query: limit (default 20, max 50), unread_only (bool).
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	unreadOnly := false
	if u := r.URL.Query().Get("unread_only"); u != "" {
		parsed, err := strconv.ParseBool(u)
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid unread_only parameter")
			return
		}
		unreadOnly = parsed
	}

	resp, err := h.notifService.List(r.Context(), h.audience, userID, limit, unreadOnly)
	if err != nil {
		h.logger.Error("list notifications", zap.Int64("user_id", userID), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to get notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetUnreadCount handles GET .../unread-count
// Returns the count of unread notifications (for badge display).
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	count, err := h.notifService.UnreadCount(r.Context(), h.audience, userID)
	if err != nil {
		h.logger.Error("get unread count", zap.Int64("user_id", userID), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to get unread count")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"unread_count": count,
	})
}

// MarkRead handles PATCH .../read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if len(req.NotificationIDs) == 0 {
		httputil.WriteBadRequest(w, "notification_ids is required")
		return
	}

	n, err := h.notifService.MarkAsRead(r.Context(), h.audience, userID, req.NotificationIDs)
	if err != nil {
		h.logger.Error("mark notifications read", zap.Int64("user_id", userID), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to mark notifications as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Notifications marked as read",
		"updated": n,
	})
}

// MarkAllRead handles PATCH .../read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	n, err := h.notifService.MarkAllAsRead(r.Context(), h.audience, userID)
	if err != nil {
		h.logger.Error("mark all notifications read", zap.Int64("user_id", userID), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to mark all notifications as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": n,
	})
}

// Delete handles DELETE /notifications/{id}
// Only the end-user inbox supports deletion.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid notification ID")
		return
	}

	if err := h.notifService.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, model.ErrNotificationNotFound) {
			httputil.WriteNotFound(w, err.Error())
			return
		}
		h.logger.Error("delete notification", zap.Int64("user_id", userID), zap.Int64("id", id), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to delete notification")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
