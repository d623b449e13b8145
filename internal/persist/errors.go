package persist

import "errors"

var (
	ErrBridgeAlreadyRunning = errors.New("persistence bridge is already running")
	ErrBridgeNotRunning     = errors.New("persistence bridge is not running")
)
