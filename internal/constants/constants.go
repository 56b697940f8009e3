// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Listing constants
const (
	// DefaultHistoryLimit is the number of attendance records returned for an identity
	DefaultHistoryLimit = 30

	// DefaultAuditLimit is the number of audit entries returned for a route
	DefaultAuditLimit = 50

	// MaxListLimit caps the limit query parameter of list endpoints
	MaxListLimit = 1000
)

// File upload constants
const (
	// MaxUploadSize is the maximum size of a probe or enrollment photograph
	MaxUploadSize = 10 << 20 // 10 MB
)

// Server constants
const (
	// RequestTimeout bounds a single HTTP request, including extraction
	RequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long in-flight requests get on shutdown
	ShutdownTimeout = 30 * time.Second
)

// Import constants
const (
	// ProgressThrottle is the minimum interval between progress bar redraws
	ProgressThrottle = 65 * time.Millisecond
)
