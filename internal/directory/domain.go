// Package directory is the read-side adapter over the identity tables owned
// by the platform's identity-management service.
package directory

// User lifecycle statuses as stored upstream.
const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusTerminated = "terminated"
	StatusPending    = "pending"
)
