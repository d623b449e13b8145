package auth

import "errors"

var (
	ErrMissingToken = errors.New("access token is required")
	ErrInvalidToken = errors.New("access token could not be parsed")
)
