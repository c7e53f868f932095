// Package service implements the weather, alert and account logic behind
// the HTTP handlers.
package service

import "errors"

var (
	ErrNoCities       = errors.New("No cities provided")
	ErrTooManyCities  = errors.New("too many cities requested")
	ErrUnknownCity    = errors.New("city not found")
	ErrUpstream       = errors.New("weather provider error")
	ErrInvalidPayload = errors.New("payload must be a JSON object")

	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email most likely taken")
	ErrWeakPassword       = errors.New("password too short")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found or expired")
)
