package service

import "errors"

// ErrInvalidDevice is returned for an unusable device registration
var ErrInvalidDevice = errors.New("invalid device registration")
