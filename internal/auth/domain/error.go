package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountCreation    = errors.New("account creation failed")
	ErrSignupInProgress   = errors.New("signup in progress")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidRole        = errors.New("invalid_role")
)
