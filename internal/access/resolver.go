package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/surveyforge/surveyforge/internal/shared"
)

// UserGrants is the user projection consumed by the resolver.
type UserGrants struct {
	Role              string
	CustomPermissions []string
}

// RoleGrants is the role projection consumed by the resolver.
type RoleGrants struct {
	Name        string
	Permissions []string
}

// UserDirectory supplies the assigned role and ad-hoc permission codes per user.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (UserGrants, error)
}

// RoleStore supplies active role records by name.
type RoleStore interface {
	FindActiveRoleByName(ctx context.Context, name string) (RoleGrants, error)
}

// PermissionCatalog supplies the active permission codes.
type PermissionCatalog interface {
	ListActiveCodes(ctx context.Context) ([]string, error)
}

// Resolver computes the effective permission set for a user. Every failure
// path collapses to the empty set: a backend outage must deny, never grant.
type Resolver struct {
	users   UserDirectory
	roles   RoleStore
	catalog PermissionCatalog
	logger  *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(users UserDirectory, roles RoleStore, catalog PermissionCatalog, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, roles: roles, catalog: catalog, logger: logger}
}

// Resolve returns the effective permission codes for the user, deduplicated
// and sorted. Unknown users, unknown or inactive roles, and storage errors
// all contribute the empty set.
func (r *Resolver) Resolve(ctx context.Context, userID string) []string {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logError("resolve user", userID, err)
		}
		return nil
	}

	if user.Role == RoleSuperAdmin {
		codes, err := r.catalog.ListActiveCodes(ctx)
		if err != nil {
			r.logError("resolve catalog", userID, err)
			return nil
		}
		return normalizeCodes(codes)
	}

	var granted []string
	if user.Role != "" {
		role, err := r.roles.FindActiveRoleByName(ctx, user.Role)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			// Unknown or inactive role contributes nothing.
		case err != nil:
			r.logError("resolve role", userID, err)
			return nil
		default:
			granted = append(granted, role.Permissions...)
		}
	}
	granted = append(granted, user.CustomPermissions...)
	return normalizeCodes(granted)
}

func (r *Resolver) logError(op, userID string, err error) {
	if r.logger != nil {
		r.logger.Error("access "+op, slog.String("user_id", userID), slog.Any("error", err))
	}
}
