package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dealership_backend/internal/model"
	"dealership_backend/internal/push"
	"dealership_backend/internal/realtime"
	"dealership_backend/internal/repository"
	"dealership_backend/internal/task"
)

// =============================================================================
// In-memory stores
// =============================================================================

type memInbox struct {
	mu       sync.Mutex
	user     []model.InboxRecord
	operator []model.InboxRecord
	nextID   int64
	writeErr error
}

func (m *memInbox) Write(ctx context.Context, b repository.InboxBatch) (repository.InboxBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return repository.InboxBatch{}, m.writeErr
	}
	fill := func(in []model.InboxRecord) []model.InboxRecord {
		out := make([]model.InboxRecord, len(in))
		for i, rec := range in {
			m.nextID++
			rec.ID = m.nextID
			rec.CreatedAt = time.Now()
			out[i] = rec
		}
		return out
	}
	out := repository.InboxBatch{User: fill(b.User), Operator: fill(b.Operator)}
	m.user = append(m.user, out.User...)
	m.operator = append(m.operator, out.Operator...)
	return out, nil
}

type memDevices struct {
	mu      sync.Mutex
	targets map[string]model.DeviceTarget
}

func newMemDevices() *memDevices {
	return &memDevices{targets: make(map[string]model.DeviceTarget)}
}

func (m *memDevices) add(token string, userID *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[token] = model.DeviceTarget{Token: token, UserID: userID, Platform: model.PlatformAndroid, UpdatedAt: time.Now()}
}

func (m *memDevices) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.targets[token]
	return ok
}

func (m *memDevices) RegisterOwned(ctx context.Context, userID int64, token, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, t := range m.targets {
		if t.UserID != nil && *t.UserID == userID && tok != token {
			delete(m.targets, tok)
		}
	}
	uid := userID
	m.targets[token] = model.DeviceTarget{Token: token, UserID: &uid, Platform: platform, UpdatedAt: time.Now()}
	return nil
}

func (m *memDevices) RegisterAnonymous(ctx context.Context, token, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[token]
	if !ok {
		t = model.DeviceTarget{Token: token, Platform: platform}
	}
	t.UpdatedAt = time.Now()
	m.targets[token] = t
	return nil
}

func (m *memDevices) ListByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []model.DeviceTarget
	for _, t := range m.targets {
		if t.UserID != nil && want[*t.UserID] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *memDevices) ListAnonymous(ctx context.Context) ([]model.DeviceTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeviceTarget
	for _, t := range m.targets {
		if t.UserID == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *memDevices) DeleteIfStale(ctx context.Context, token string, readAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[token]
	if !ok || !t.UpdatedAt.Equal(readAt) {
		return false, nil
	}
	delete(m.targets, token)
	return true, nil
}

func (m *memDevices) DeleteOwned(ctx context.Context, owner *int64, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[token]
	if !ok {
		return false, nil
	}
	if owner == nil && t.UserID != nil || owner != nil && (t.UserID == nil || *t.UserID != *owner) {
		return false, nil
	}
	delete(m.targets, token)
	return true, nil
}

func (m *memDevices) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for tok, t := range m.targets {
		if t.UserID != nil && *t.UserID == userID {
			delete(m.targets, tok)
			n++
		}
	}
	return n, nil
}

type mockPrincipals struct {
	roles map[int64]model.Role
	err   error
}

func (m *mockPrincipals) GetRoles(ctx context.Context, ids []int64) (map[int64]model.Role, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int64]model.Role)
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *mockPrincipals) list(operators bool) []int64 {
	var ids []int64
	for id, r := range m.roles {
		if r.IsOperator() == operators {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *mockPrincipals) ListActiveCustomerIDs(ctx context.Context) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list(false), nil
}

func (m *mockPrincipals) ListOperatorIDs(ctx context.Context) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list(true), nil
}

// =============================================================================
// Delivery fakes
// =============================================================================

type recordingRealtime struct {
	mu         sync.Mutex
	broadcasts []realtime.Event
	direct     map[int64][]realtime.Event
}

func (r *recordingRealtime) Broadcast(ev realtime.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, ev)
	return 1
}

func (r *recordingRealtime) SendTo(principalID int64, ev realtime.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.direct == nil {
		r.direct = make(map[int64][]realtime.Event)
	}
	r.direct[principalID] = append(r.direct[principalID], ev)
	return true
}

// fakeProvider is a push.Provider that fails the tokens it is told to.
type fakeProvider struct {
	mu      sync.Mutex
	sent    []string
	invalid map[string]bool
	err     error
	onSend  func()
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) SendBatch(ctx context.Context, tokens []string, msg push.Message) ([]push.Outcome, error) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tokens...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]push.Outcome, len(tokens))
	for i, t := range tokens {
		if f.invalid[t] {
			out[i] = push.Outcome{Token: t, Permanent: true, Err: errors.New("unregistered")}
			continue
		}
		out[i] = push.Outcome{Token: t, Success: true}
	}
	return out, nil
}

// capturingRunner holds tasks instead of running them.
type capturingRunner struct {
	names []string
}

func (c *capturingRunner) Go(name string, fn task.Func) bool {
	c.names = append(c.names, name)
	return true
}

func ptr(v int64) *int64 { return &v }
