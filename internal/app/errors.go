package app

import "errors"

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrNotRunning     = errors.New("application is not running")
)
