package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/handler"
	"dealership_backend/internal/model"
	"dealership_backend/internal/service"
	"dealership_backend/internal/transport/http/middleware"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type stubVerifier map[string]model.Principal

func (v stubVerifier) Verify(credential string) (model.Principal, error) {
	if p, ok := v[credential]; ok {
		return p, nil
	}
	return model.Principal{}, auth.ErrInvalidCredential
}

var verifier = stubVerifier{
	"cust":  {ID: 10, Role: model.RoleCustomer},
	"staff": {ID: 20, Role: model.RoleStaff},
}

type mockInbox struct {
	lastAudience model.Audience
	lastLimit    int
	lastUnread   bool
	deleteErr    error
}

func (m *mockInbox) List(ctx context.Context, a model.Audience, id int64, limit int, unreadOnly bool) (*model.InboxListResponse, error) {
	m.lastAudience, m.lastLimit, m.lastUnread = a, limit, unreadOnly
	return &model.InboxListResponse{Items: []model.InboxRecord{{ID: 1}}, UnreadCount: 1}, nil
}

func (m *mockInbox) UnreadCount(ctx context.Context, a model.Audience, id int64) (int, error) {
	m.lastAudience = a
	return 3, nil
}

func (m *mockInbox) MarkAsRead(ctx context.Context, a model.Audience, id int64, ids []int64) (int64, error) {
	m.lastAudience = a
	return int64(len(ids)), nil
}

func (m *mockInbox) MarkAllAsRead(ctx context.Context, a model.Audience, id int64) (int64, error) {
	m.lastAudience = a
	return 5, nil
}

func (m *mockInbox) Delete(ctx context.Context, recipientID, id int64) error {
	return m.deleteErr
}

type mockDevices struct {
	owner *int64
	token string
}

func (m *mockDevices) RegisterDevice(ctx context.Context, userID *int64, token, platform string) error {
	if token == "" {
		return service.ErrInvalidDevice
	}
	m.owner, m.token = userID, token
	return nil
}

func (m *mockDevices) RemoveDevice(ctx context.Context, owner *int64, token string) (bool, error) {
	m.owner, m.token = owner, token
	return true, nil
}

func (m *mockDevices) SignOut(ctx context.Context, userID int64) (int64, error) { return 2, nil }

type mockDispatcher struct {
	events []model.Event
	result model.DispatchResult
}

func (m *mockDispatcher) Dispatch(ctx context.Context, ev model.Event) (model.DispatchResult, error) {
	m.events = append(m.events, ev)
	return m.result, nil
}

type mockAppointments struct {
	err error
}

func (m *mockAppointments) UpdateStatus(ctx context.Context, id int64, req model.UpdateAppointmentStatusRequest) (*model.Appointment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Appointment{ID: id, Status: req.Status}, nil
}

// =============================================================================
// Test Helpers
// =============================================================================

type fixture struct {
	inbox        *mockInbox
	devices      *mockDevices
	dispatcher   *mockDispatcher
	appointments *mockAppointments
	router       chi.Router
}

func newFixture() *fixture {
	f := &fixture{
		inbox:        &mockInbox{},
		devices:      &mockDevices{},
		dispatcher:   &mockDispatcher{},
		appointments: &mockAppointments{},
	}
	logger := zap.NewNop()
	user := handler.NewNotificationHandler(f.inbox, logger)
	admin := handler.NewAdminNotificationHandler(f.inbox, logger)
	devices := handler.NewDeviceHandler(f.devices, logger)
	adm := handler.NewAdminHandler(f.dispatcher, f.appointments, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(verifier))
		r.Post("/devices/token", devices.RegisterToken)
		r.Delete("/devices/token", devices.RemoveToken)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(verifier))
		r.Get("/notifications", user.List)
		r.Get("/notifications/unread-count", user.GetUnreadCount)
		r.Delete("/notifications/{id}", user.Delete)
		r.Post("/devices/sign-out", devices.SignOut)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperator)
			r.Get("/admin/notifications", admin.List)
			r.Patch("/admin/notifications/read-all", admin.MarkAllRead)
			r.Post("/admin/broadcast", adm.Broadcast)
			r.Patch("/admin/appointments/{id}/status", adm.UpdateAppointmentStatus)
		})
	})
	f.router = r
	return f
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestNotificationHandler_List(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/notifications?limit=10&unread_only=true", "cust", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.inbox.lastAudience != model.AudienceUser || f.inbox.lastLimit != 10 || !f.inbox.lastUnread {
		t.Errorf("inbox called with %+v", f.inbox)
	}

	var resp model.InboxListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.UnreadCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNotificationHandler_BadInput(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/notifications", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/notifications", "forged", http.StatusUnauthorized},
		{"bad limit", http.MethodGet, "/notifications?limit=abc", "cust", http.StatusBadRequest},
		{"bad unread flag", http.MethodGet, "/notifications?unread_only=maybe", "cust", http.StatusBadRequest},
		{"bad id", http.MethodDelete, "/notifications/x", "cust", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(tt.method, tt.path, tt.token, nil); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNotificationHandler_DeleteNotFound(t *testing.T) {
	f := newFixture()
	f.inbox.deleteErr = model.ErrNotificationNotFound

	if rec := f.do(http.MethodDelete, "/notifications/9", "cust", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	f.inbox.deleteErr = nil
	if rec := f.do(http.MethodDelete, "/notifications/9", "cust", nil); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestAdminRoutes_RequireOperator(t *testing.T) {
	f := newFixture()

	if rec := f.do(http.MethodGet, "/admin/notifications", "cust", nil); rec.Code != http.StatusForbidden {
		t.Errorf("customer got %d, want 403", rec.Code)
	}

	rec := f.do(http.MethodPatch, "/admin/notifications/read-all", "staff", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.inbox.lastAudience != model.AudienceOperator {
		t.Errorf("audience = %s, want operator", f.inbox.lastAudience)
	}
}

func TestDeviceHandler_RegisterToken(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/devices/token", "", model.RegisterTokenRequest{Token: "guest-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if f.devices.owner != nil {
		t.Error("anonymous registration got an owner")
	}

	rec = f.do(http.MethodPost, "/devices/token", "cust", model.RegisterTokenRequest{Token: "phone", Platform: "ios"})
	if rec.Code != http.StatusOK {
		t.Fatalf("owned status = %d", rec.Code)
	}
	if f.devices.owner == nil || *f.devices.owner != 10 {
		t.Errorf("owner = %v, want 10", f.devices.owner)
	}

	if rec := f.do(http.MethodPost, "/devices/token", "cust", model.RegisterTokenRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty token status = %d, want 400", rec.Code)
	}
}

func TestDeviceHandler_RemoveToken(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodDelete, "/devices/token", "cust", model.RegisterTokenRequest{Token: "phone"})
	if rec.Code != http.StatusOK {
		t.Fatalf("owned status = %d", rec.Code)
	}
	if f.devices.owner == nil || *f.devices.owner != 10 || f.devices.token != "phone" {
		t.Errorf("removal scoped to owner %v token %q, want 10 phone", f.devices.owner, f.devices.token)
	}

	rec = f.do(http.MethodDelete, "/devices/token", "", model.RegisterTokenRequest{Token: "guest-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if f.devices.owner != nil {
		t.Error("anonymous removal carried an owner")
	}

	// An unverifiable credential is a guest and reaches guest targets only
	prev := int64(10)
	f.devices.owner = &prev
	if rec := f.do(http.MethodDelete, "/devices/token", "bogus", model.RegisterTokenRequest{Token: "phone"}); rec.Code != http.StatusOK {
		t.Errorf("bad credential status = %d", rec.Code)
	}
	if f.devices.owner != nil {
		t.Error("unverified caller removed as an owner")
	}
	if rec := f.do(http.MethodDelete, "/devices/token", "cust", model.RegisterTokenRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty token status = %d, want 400", rec.Code)
	}
}

func TestAdminHandler_Broadcast(t *testing.T) {
	f := newFixture()
	f.dispatcher.result = model.DispatchResult{RecordsWritten: 3, PushSucceeded: 2, PushFailed: 1}

	rec := f.do(http.MethodPost, "/admin/broadcast", "staff", model.BroadcastRequest{Title: "Holiday", Body: "Closed Monday"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var got struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Sent != 2 || got.Failed != 1 {
		t.Errorf("counts = %+v, want sent=2 failed=1", got)
	}

	ev, ok := f.dispatcher.events[0].(model.AnnouncementEvent)
	if !ok || ev.Kind != model.CategoryGeneral {
		t.Errorf("event = %+v", f.dispatcher.events[0])
	}

	if rec := f.do(http.MethodPost, "/admin/broadcast", "staff", model.BroadcastRequest{Title: " ", Body: "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank title status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/admin/broadcast", "staff", model.BroadcastRequest{Title: "a", Body: "b", Category: model.CategoryBreakdown}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad category status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/admin/broadcast", "staff", model.BroadcastRequest{Title: "a", Body: "b", Data: map[string]string{"from": "x"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("reserved data key status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/admin/broadcast", "staff", model.BroadcastRequest{Title: "a", Body: strings.Repeat("x", 1001)}); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d", rec.Code)
	}
	if len(f.dispatcher.events) != 1 {
		t.Errorf("rejected announcements were dispatched: %d events", len(f.dispatcher.events))
	}
}

func TestAdminHandler_UpdateAppointmentStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"not found", model.ErrAppointmentNotFound, http.StatusNotFound},
		{"bad transition", model.ErrInvalidTransition, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.appointments.err = tt.err
			rec := f.do(http.MethodPatch, "/admin/appointments/7/status", "staff",
				model.UpdateAppointmentStatusRequest{Status: model.AppointmentConfirmed})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
