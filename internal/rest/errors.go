package rest

import "errors"

var (
	ErrUnexpectedStatus = errors.New("session API returned unexpected status")
)
