package httpserver

import "errors"

var (
	ErrStart          = errors.New("failed to start HTTP server")
	ErrShutdown       = errors.New("failed to shutdown HTTP server gracefully")
	ErrStopHook       = errors.New("HTTP server stop hook failed")
	ErrAlreadyRunning = errors.New("HTTP server is already running")
)
