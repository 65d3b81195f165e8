// Package grants stores user-level permission overrides and role-level
// permission grants, and runs the admin mutations that must invalidate the
// manifest cache.
package grants

import (
	"errors"

	"github.com/novahr/nova-authz/internal/authz"
)

var (
	// ErrNotFound indicates the grant record does not exist.
	ErrNotFound = errors.New("grants: not found")
	// ErrSubjectNotFound indicates the referenced user or role does not exist.
	ErrSubjectNotFound = errors.New("grants: subject not found")
	// ErrValidation indicates a malformed mutation input.
	ErrValidation = errors.New("grants: validation failed")
)

// SetOverrideInput sets or replaces a user-level override.
type SetOverrideInput struct {
	UserID     int64          `validate:"required,gt=0"`
	Permission string         `validate:"required,max=128"`
	Decision   authz.Decision `validate:"required,oneof=allow deny"`
}

// SetRoleGrantInput sets or replaces a role-level grant.
type SetRoleGrantInput struct {
	RoleID     int64          `validate:"required,gt=0"`
	Permission string         `validate:"required,max=128"`
	Decision   authz.Decision `validate:"required,oneof=allow deny"`
}
