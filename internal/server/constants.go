// Package server exposes the session over HTTP and WebSocket.
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket command rate limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Deadline for one event write to a WebSocket client
	WriteTimeout = 5 * time.Second

	// Outbound messages queued per WebSocket client before events are dropped
	SendBuffer = 64

	// Maximum JSON request body for REST endpoints
	MaxBodyBytes = 1 << 16
)
