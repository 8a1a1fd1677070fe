package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/model"
)

// staticVerifier maps raw credentials to principals.
type staticVerifier map[string]model.Principal

func (v staticVerifier) Verify(credential string) (model.Principal, error) {
	if credential == "" {
		return model.Principal{}, auth.ErrMissingCredential
	}
	p, ok := v[credential]
	if !ok {
		return model.Principal{}, auth.ErrInvalidCredential
	}
	return p, nil
}

func newTestRegistry() *Registry {
	return NewRegistry(staticVerifier{
		"admin-1":   {ID: 1, Role: model.RoleAdmin},
		"staff-2":   {ID: 2, Role: model.RoleStaff},
		"manager-3": {ID: 3, Role: model.RoleManager},
		"cust-9":    {ID: 9, Role: model.RoleCustomer},
	}, nil, zap.NewNop())
}

func TestRegistry_Authenticate(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		credential string
		wantErr    error
	}{
		{"admin-1", nil},
		{"staff-2", nil},
		{"manager-3", nil},
		{"cust-9", ErrNotOperator},
		{"", auth.ErrMissingCredential},
		{"bogus", auth.ErrInvalidCredential},
	}
	for _, tt := range tests {
		_, err := r.Authenticate(tt.credential)
		if tt.wantErr == nil && err != nil {
			t.Errorf("Authenticate(%q) = %v, want nil", tt.credential, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("Authenticate(%q) = %v, want %v", tt.credential, err, tt.wantErr)
		}
	}
}

func TestRegistry_RegisterRejectsNonOperator(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(NewSession(model.Principal{ID: 9, Role: model.RoleCustomer}, nil))
	if !errors.Is(err, ErrNotOperator) {
		t.Fatalf("err = %v, want ErrNotOperator", err)
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestRegistry_NewSessionReplacesOld(t *testing.T) {
	r := newTestRegistry()
	p := model.Principal{ID: 1, Role: model.RoleAdmin}

	first := NewSession(p, nil)
	second := NewSession(p, nil)
	r.Register(first)
	r.Register(second)

	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	if _, ok := <-first.send; ok {
		t.Error("replaced session's channel should be closed")
	}

	// A late release of the replaced session must not evict its successor
	r.release(first)
	if !r.Connected(1) {
		t.Fatal("successor was evicted by stale release")
	}

	if n := r.Broadcast(Event{Title: "x"}); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if len(second.send) != 1 {
		t.Errorf("successor buffered %d events, want 1", len(second.send))
	}
}

func TestRegistry_BroadcastZeroSessions(t *testing.T) {
	r := newTestRegistry()
	if n := r.Broadcast(Event{Title: "nobody"}); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestRegistry_BroadcastDropsWhenBufferFull(t *testing.T) {
	r := newTestRegistry()
	slow := NewSession(model.Principal{ID: 1, Role: model.RoleAdmin}, nil)
	fast := NewSession(model.Principal{ID: 2, Role: model.RoleStaff}, nil)
	r.Register(slow)
	r.Register(fast)

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte("filler")
	}

	done := make(chan int, 1)
	go func() { done <- r.Broadcast(Event{Title: "x"}) }()

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("delivered = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full session")
	}
}

func TestRegistry_SendToAndUnregister(t *testing.T) {
	r := newTestRegistry()
	s := NewSession(model.Principal{ID: 2, Role: model.RoleStaff}, nil)
	r.Register(s)

	if !r.SendTo(2, Event{Title: "direct"}) {
		t.Fatal("SendTo connected principal returned false")
	}
	if r.SendTo(99, Event{Title: "nobody"}) {
		t.Error("SendTo unknown principal returned true")
	}

	r.Unregister(2)
	r.Unregister(2) // idempotent
	if r.Connected(2) {
		t.Error("principal still connected after Unregister")
	}
}

func TestServeWS(t *testing.T) {
	r := newTestRegistry()
	srv := httptest.NewServer(http.HandlerFunc(r.ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("customer refused before upgrade", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=cust-9", nil)
		if err == nil {
			t.Fatal("dial succeeded for customer role")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("resp = %v, want 403", resp)
		}
		if r.Count() != 0 {
			t.Errorf("count = %d, want 0", r.Count())
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			t.Fatal("dial succeeded without credential")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("resp = %v, want 401", resp)
		}
	})

	t.Run("operator receives broadcast", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer staff-2")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for !r.Connected(2) {
			if time.Now().After(deadline) {
				t.Fatal("session never registered")
			}
			time.Sleep(10 * time.Millisecond)
		}

		r.Broadcast(Event{RecordID: 5, Category: model.CategoryBreakdown, Title: "Breakdown", Body: "help"})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != "notification" || got.RecordID != 5 || got.Category != model.CategoryBreakdown {
			t.Errorf("event = %+v", got)
		}
	})
}

func TestServeWS_CrossSite(t *testing.T) {
	verifier := staticVerifier{"admin-1": {ID: 1, Role: model.RoleAdmin}}

	t.Run("cookie is not a websocket credential", func(t *testing.T) {
		r := NewRegistry(verifier, []string{"*"}, zap.NewNop())
		srv := httptest.NewServer(http.HandlerFunc(r.ServeWS))
		defer srv.Close()

		header := http.Header{}
		header.Set("Origin", "https://evil.example")
		header.Set("Cookie", "access_token=admin-1")
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
		if err == nil {
			t.Fatal("handshake upgraded on an ambient cookie")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("resp = %v, want 401", resp)
		}
		if r.Count() != 0 {
			t.Errorf("count = %d, want 0", r.Count())
		}
	})

	t.Run("foreign origin refused", func(t *testing.T) {
		r := NewRegistry(verifier, []string{"https://admin.dealer.example"}, zap.NewNop())
		srv := httptest.NewServer(http.HandlerFunc(r.ServeWS))
		defer srv.Close()
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=admin-1"

		header := http.Header{}
		header.Set("Origin", "https://evil.example")
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			t.Fatal("foreign origin upgraded")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("resp = %v, want 403", resp)
		}

		header.Set("Origin", "https://admin.dealer.example")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err != nil {
			t.Fatalf("allowed origin: %v", err)
		}
		conn.Close()
	})
}

func TestRegistry_OriginAllowed(t *testing.T) {
	r := NewRegistry(staticVerifier{}, []string{"https://admin.dealer.example"}, zap.NewNop())

	tests := map[string]bool{
		"":                             true,
		"https://admin.dealer.example": true,
		"HTTPS://ADMIN.DEALER.EXAMPLE": true,
		"https://evil.example":         false,
		"http://admin.dealer.example":  false,
	}
	for origin, want := range tests {
		if got := r.originAllowed(origin); got != want {
			t.Errorf("originAllowed(%q) = %v, want %v", origin, got, want)
		}
	}
}
