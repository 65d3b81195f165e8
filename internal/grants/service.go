package grants

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/novahr/nova-authz/internal/authz"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	ListUserOverrides(ctx context.Context, userID int64) ([]authz.Grant, error)
	ListRoleGrants(ctx context.Context, roleID int64) ([]authz.Grant, error)
	UpsertUserOverride(ctx context.Context, userID int64, permission string, decision authz.Decision) error
	DeleteUserOverride(ctx context.Context, userID int64, permission string) (bool, error)
	UpsertRoleGrant(ctx context.Context, roleID int64, permission string, decision authz.Decision) error
	DeleteRoleGrant(ctx context.Context, roleID int64, permission string) (bool, error)
}

// Invalidator drops cached manifests after a grant mutation. The engine
// satisfies it.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
	InvalidateAll(ctx context.Context)
}

// Service runs grant administration. Every successful mutation triggers the
// matching cache invalidation: per-user for overrides, global for role grants
// (any number of users share a role, and there is no reverse index).
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		validate:    validator.New(),
		logger:      logger,
	}
}

// ListUserOverrides returns every override for a user.
func (s *Service) ListUserOverrides(ctx context.Context, userID int64) ([]authz.Grant, error) {
	return s.repo.ListUserOverrides(ctx, userID)
}

// ListRoleGrants returns every grant for a role.
func (s *Service) ListRoleGrants(ctx context.Context, roleID int64) ([]authz.Grant, error) {
	return s.repo.ListRoleGrants(ctx, roleID)
}

// SetUserOverride inserts or replaces a user-level override and drops that
// user's cached manifest.
func (s *Service) SetUserOverride(ctx context.Context, input SetOverrideInput) error {
	if err := s.checkInput(input, input.Permission); err != nil {
		return err
	}
	if err := s.repo.UpsertUserOverride(ctx, input.UserID, input.Permission, input.Decision); err != nil {
		return err
	}
	s.invalidator.InvalidateUser(ctx, input.UserID)
	s.logger.Info("set user override",
		slog.Int64("user_id", input.UserID),
		slog.String("permission", input.Permission),
		slog.String("decision", string(input.Decision)))
	return nil
}

// RemoveUserOverride deletes a user-level override and drops that user's
// cached manifest.
func (s *Service) RemoveUserOverride(ctx context.Context, userID int64, permission string) error {
	deleted, err := s.repo.DeleteUserOverride(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.invalidator.InvalidateUser(ctx, userID)
	s.logger.Info("remove user override",
		slog.Int64("user_id", userID),
		slog.String("permission", permission))
	return nil
}

// SetRoleGrant inserts or replaces a role-level grant and drops every cached
// manifest.
func (s *Service) SetRoleGrant(ctx context.Context, input SetRoleGrantInput) error {
	if err := s.checkInput(input, input.Permission); err != nil {
		return err
	}
	if err := s.repo.UpsertRoleGrant(ctx, input.RoleID, input.Permission, input.Decision); err != nil {
		return err
	}
	s.invalidator.InvalidateAll(ctx)
	s.logger.Info("set role grant",
		slog.Int64("role_id", input.RoleID),
		slog.String("permission", input.Permission),
		slog.String("decision", string(input.Decision)))
	return nil
}

// RemoveRoleGrant deletes a role-level grant and drops every cached manifest.
func (s *Service) RemoveRoleGrant(ctx context.Context, roleID int64, permission string) error {
	deleted, err := s.repo.DeleteRoleGrant(ctx, roleID, permission)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.invalidator.InvalidateAll(ctx)
	s.logger.Info("remove role grant",
		slog.Int64("role_id", roleID),
		slog.String("permission", permission))
	return nil
}

func (s *Service) checkInput(input any, permission string) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// The wildcard lives on the role record itself, never in the grant tables.
	if permission == authz.PermissionWildcard {
		return fmt.Errorf("%w: wildcard is managed on the role record", ErrValidation)
	}
	return nil
}
