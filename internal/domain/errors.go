package domain

import "errors"

var (
	ErrNoSession           = errors.New("no session")
	ErrMalformedSession    = errors.New("malformed session")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionNotRenewable = errors.New("session not renewable")
)
