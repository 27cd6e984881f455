package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// RepositoryPort defines data access methods for the user directory.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	CountByRole(ctx context.Context, roleName string) (int64, error)
	AssignRole(ctx context.Context, id uuid.UUID, roleName string) (User, error)
	SetCustomPermissions(ctx context.Context, id uuid.UUID, codes []string) (User, error)
}

// Service handles user directory administration.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, fmt.Errorf("users: %s: %w", id, httpx.ErrNotFound)
	}
	return user, err
}

// AssignRole changes a user's role name. The new role claim takes effect for
// role checks only after the user re-logs in; permission checks pick it up
// once the cache entry expires.
func (s *Service) AssignRole(ctx context.Context, id uuid.UUID, roleName string) (User, error) {
	user, err := s.repo.AssignRole(ctx, id, roleName)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, fmt.Errorf("users: %s: %w", id, httpx.ErrNotFound)
	}
	return user, err
}

// SetCustomPermissions replaces a user's ad-hoc permission codes.
func (s *Service) SetCustomPermissions(ctx context.Context, id uuid.UUID, codes []string) (User, error) {
	user, err := s.repo.SetCustomPermissions(ctx, id, codes)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, fmt.Errorf("users: %s: %w", id, httpx.ErrNotFound)
	}
	return user, err
}

// CountByRole reports how many users currently hold a role name.
func (s *Service) CountByRole(ctx context.Context, roleName string) (int64, error) {
	return s.repo.CountByRole(ctx, roleName)
}
