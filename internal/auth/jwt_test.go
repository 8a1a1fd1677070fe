package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dealership_backend/internal/model"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret")

	token, err := v.Sign(model.Principal{ID: 42, Role: model.RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.ID != 42 || p.Role != model.RoleAdmin {
		t.Errorf("principal = %+v, want {42 admin}", p)
	}
}

func TestJWTVerifier_MissingRoleDefaultsToCustomer(t *testing.T) {
	v := NewJWTVerifier("secret")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	token, _ := raw.SignedString([]byte("secret"))

	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Role != model.RoleCustomer {
		t.Errorf("role = %q, want customer", p.Role)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret")
	other := NewJWTVerifier("other")

	expired, _ := v.Sign(model.Principal{ID: 1, Role: model.RoleAdmin}, -time.Minute)
	wrongKey, _ := other.Sign(model.Principal{ID: 1, Role: model.RoleAdmin}, time.Minute)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingCredential},
		{"garbage", "not-a-jwt", ErrInvalidCredential},
		{"expired", expired, ErrExpiredCredential},
		{"wrong key", wrongKey, ErrInvalidCredential},
		{"no user_id", noUser, ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
