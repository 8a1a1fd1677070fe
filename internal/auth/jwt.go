package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dealership_backend/internal/model"
)

var (
	// ErrMissingCredential is returned when no token was presented
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned for malformed, badly signed or claim-less tokens
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential is returned for tokens past their exp claim
	ErrExpiredCredential = errors.New("credential expired")
)

// Verifier resolves a credential to a principal.
type Verifier interface {
	Verify(credential string) (model.Principal, error)
}

// JWTVerifier validates HS256 access tokens carrying user_id and role claims.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token.
func (v *JWTVerifier) Verify(credential string) (model.Principal, error) {
	if credential == "" {
		return model.Principal{}, ErrMissingCredential
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Principal{}, ErrExpiredCredential
		}
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Principal{}, ErrInvalidCredential
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return model.Principal{}, fmt.Errorf("%w: user_id claim", ErrInvalidCredential)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = string(model.RoleCustomer)
	}

	return model.Principal{ID: int64(userIDFloat), Role: model.Role(role)}, nil
}

// Sign issues an access token. Token issuance belongs to the identity service;
// this exists for tooling and tests.
func (v *JWTVerifier) Sign(p model.Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": p.ID,
		"role":    string(p.Role),
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
