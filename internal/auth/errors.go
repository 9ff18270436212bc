package auth

import "errors"

// Auth-specific errors
var (
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrUserNotFound       = errors.New("admin user not found")
	ErrInvalidRole        = errors.New("invalid admin role")
	ErrWeakPassword       = errors.New("password must be at least 12 characters")
)
