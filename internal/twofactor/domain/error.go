package domain

import "errors"

var (
	ErrChallengeNotFound = errors.New("two_factor_challenge_not_found")
	ErrChallengeExpired  = errors.New("two_factor_challenge_expired")
	ErrInvalidCode       = errors.New("two_factor_invalid_code")
)
