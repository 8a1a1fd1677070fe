package model

import (
	"time"
)

// DeviceTarget is a push-capable device identifier.
// UserID is nil for anonymous (guest) devices. Token is unique.
type DeviceTarget struct {
	ID        int64     `db:"id" json:"id"`
	UserID    *int64    `db:"user_id" json:"-"`
	Token     string    `db:"token" json:"-"` // provider token, hidden from JSON
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Anonymous reports whether the target has no owning principal.
func (t DeviceTarget) Anonymous() bool {
	return t.UserID == nil
}

// RegisterTokenRequest is the request body for registering a device token.
type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"` // "ios", "android" or "expo"
}

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformExpo    = "expo"
)
