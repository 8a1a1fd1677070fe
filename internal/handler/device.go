package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"dealership_backend/internal/httputil"
	"dealership_backend/internal/model"
	"dealership_backend/internal/service"
	"dealership_backend/internal/transport/http/middleware"
)

// DeviceService manages push targets.
type DeviceService interface {
	RegisterDevice(ctx context.Context, userID *int64, token, platform string) error
	RemoveDevice(ctx context.Context, owner *int64, token string) (bool, error)
	SignOut(ctx context.Context, userID int64) (int64, error)
}

type DeviceHandler struct {
	devices DeviceService
	logger  *zap.Logger
}

func NewDeviceHandler(devices DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  logger.Named("device_handler"),
	}
}

// RegisterToken handles POST /devices/token
// Signed-in callers get an owned target; anonymous callers get a guest target.
func (h *DeviceHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	var owner *int64
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		owner = &userID
	}

	if err := h.devices.RegisterDevice(r.Context(), owner, req.Token, req.Platform); err != nil {
		if errors.Is(err, service.ErrInvalidDevice) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("register device token", zap.Bool("anonymous", owner == nil), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to register device token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Device token registered",
	})
}

// RemoveToken handles DELETE /devices/token
// Signed-in callers remove their own target; anonymous callers only guest targets.
func (h *DeviceHandler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	var owner *int64
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		owner = &userID
	}

	removed, err := h.devices.RemoveDevice(r.Context(), owner, req.Token)
	if err != nil {
		h.logger.Error("remove device token", zap.Bool("anonymous", owner == nil), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to remove device token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Device token removed",
		"removed": removed,
	})
}

// SignOut handles POST /devices/sign-out
// Clears every target the caller owns.
func (h *DeviceHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	n, err := h.devices.SignOut(r.Context(), userID)
	if err != nil {
		h.logger.Error("clear device tokens", zap.Int64("user_id", userID), zap.Error(err))
		httputil.WriteInternalError(w, "Failed to clear device tokens")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Device tokens cleared",
		"removed": n,
	})
}
