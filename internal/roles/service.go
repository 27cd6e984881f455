package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	GetByID(ctx context.Context, id int64) (Role, error)
	FindByName(ctx context.Context, name string) (Role, error)
	Insert(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	SoftDelete(ctx context.Context, id int64) error
	AddPermissions(ctx context.Context, id int64, codes []string) (Role, error)
	RemovePermissions(ctx context.Context, id int64, codes []string) (Role, error)
	SetPermissions(ctx context.Context, id int64, codes []string) (Role, error)
	StoreUserCount(ctx context.Context, name string, count int64) error
}

// UserCounter reports how many users currently hold a role name.
type UserCounter interface {
	CountByRole(ctx context.Context, roleName string) (int64, error)
}

// Service handles role administration.
type Service struct {
	repo      RepositoryPort
	directory UserCounter
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, directory UserCounter) *Service {
	return &Service{repo: repo, directory: directory}
}

// CreateInput carries administrator input for a new role.
type CreateInput struct {
	Name        string
	DisplayName string
	Permissions []string
	Priority    int
	IsActive    bool
}

// UpdateInput carries administrator input for an existing role.
type UpdateInput struct {
	Name        string
	DisplayName string
	Priority    int
	IsActive    bool
}

// List returns all non-deleted roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
	}
	return role, err
}

// Create registers a new role. The name must be unique among non-deleted
// roles.
func (s *Service) Create(ctx context.Context, input CreateInput) (Role, error) {
	name := normalizeName(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: name required: %w", httpx.ErrValidation)
	}
	created, err := s.repo.Insert(ctx, Role{
		Name:        name,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Permissions: normalizePermissionList(input.Permissions),
		IsSystem:    false,
		IsActive:    input.IsActive,
		Priority:    input.Priority,
	})
	if errors.Is(err, ErrDuplicateName) {
		return Role{}, fmt.Errorf("roles: name %s already exists: %w", name, httpx.ErrConflict)
	}
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// Update mutates a role's descriptor. System roles keep their name and
// priority forever.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Role, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}

	name := normalizeName(input.Name)
	if name == "" {
		name = current.Name
	}
	if current.IsSystem {
		if name != current.Name {
			return Role{}, fmt.Errorf("roles: system role %s cannot be renamed: %w", current.Name, httpx.ErrInvariant)
		}
		if input.Priority != current.Priority {
			return Role{}, fmt.Errorf("roles: system role %s priority is fixed: %w", current.Name, httpx.ErrInvariant)
		}
	}

	updated, err := s.repo.Update(ctx, Role{
		ID:          id,
		Name:        name,
		DisplayName: strings.TrimSpace(input.DisplayName),
		IsActive:    input.IsActive,
		Priority:    input.Priority,
	})
	if errors.Is(err, ErrDuplicateName) {
		return Role{}, fmt.Errorf("roles: name %s already exists: %w", name, httpx.ErrConflict)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// Remove soft-deletes a role. System roles and roles still held by users
// cannot be removed. Users keeping the orphaned role name are left to
// operational cleanup; their role simply stops resolving.
func (s *Service) Remove(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return fmt.Errorf("roles: system role %s cannot be deleted: %w", current.Name, httpx.ErrInvariant)
	}
	count, err := s.RecountUsers(ctx, current.Name)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("roles: %s is assigned to %d users: %w", current.Name, count, httpx.ErrInvariant)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
		}
		return err
	}
	return nil
}

// AddPermissions unions codes into the role's permission set.
func (s *Service) AddPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	return s.mutatePermissions(ctx, id, codes, s.repo.AddPermissions)
}

// RemovePermissions subtracts codes from the role's permission set.
func (s *Service) RemovePermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	return s.mutatePermissions(ctx, id, codes, s.repo.RemovePermissions)
}

// SetPermissions replaces the role's permission set.
func (s *Service) SetPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	return s.mutatePermissions(ctx, id, normalizePermissionList(codes), s.repo.SetPermissions)
}

func (s *Service) mutatePermissions(ctx context.Context, id int64, codes []string, op func(context.Context, int64, []string) (Role, error)) (Role, error) {
	role, err := op(ctx, id, normalizePermissionList(codes))
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
	}
	return role, err
}

// RecountUsers recomputes the denormalized user counter for a role name by
// scanning the user directory, stores it, and returns it. The counter is not
// transactionally consistent with user mutations.
func (s *Service) RecountUsers(ctx context.Context, name string) (int64, error) {
	count, err := s.directory.CountByRole(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("roles: recount %s: %w", name, err)
	}
	if err := s.repo.StoreUserCount(ctx, name, count); err != nil {
		return 0, fmt.Errorf("roles: store count %s: %w", name, err)
	}
	return count, nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func normalizePermissionList(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	ordered := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		if _, seen := unique[c]; seen {
			continue
		}
		unique[c] = struct{}{}
		ordered = append(ordered, c)
	}
	return ordered
}
