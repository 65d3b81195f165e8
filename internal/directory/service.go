package directory

import (
	"context"
	"errors"

	"github.com/novahr/nova-authz/internal/authz"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("directory: not found")

// RepositoryPort defines data access methods for identity records.
type RepositoryPort interface {
	FindUserByID(ctx context.Context, id int64) (*authz.User, error)
	FindRoleByID(ctx context.Context, id int64) (*authz.Role, error)
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// Service handles directory lookups.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*authz.User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (*authz.Role, error) {
	role, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrNotFound
	}
	return role, nil
}

// ActiveUserIDs lists the ids of all active users.
func (s *Service) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListActiveUserIDs(ctx)
}
