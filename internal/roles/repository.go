package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/shared"
)

const uniqueViolation = "23505"

// ErrDuplicateName indicates a role name collision among non-deleted roles.
var ErrDuplicateName = errors.New("roles: duplicate name")

const roleColumns = `id, name, display_name, permissions, is_system, is_active, priority, user_count, deleted_at, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all non-deleted roles ordered by priority then name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE deleted_at IS NULL
		ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetByID fetches one non-deleted role.
func (r *Repository) GetByID(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE id = $1 AND deleted_at IS NULL`, id)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// FindByName fetches one non-deleted role by name.
func (r *Repository) FindByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE name = $1 AND deleted_at IS NULL`, name)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// FindActiveRoleByName satisfies the access engine's role store port.
// Inactive and deleted roles resolve to not-found.
func (r *Repository) FindActiveRoleByName(ctx context.Context, name string) (access.RoleGrants, error) {
	var grants access.RoleGrants
	err := r.pool.QueryRow(ctx, `
		SELECT name, permissions FROM roles
		WHERE name = $1 AND is_active AND deleted_at IS NULL`, name).
		Scan(&grants.Name, &grants.Permissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return access.RoleGrants{}, shared.ErrNotFound
	}
	if err != nil {
		return access.RoleGrants{}, err
	}
	return grants, nil
}

// Insert stores a new role.
func (r *Repository) Insert(ctx context.Context, role Role) (Role, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, permissions, is_system, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_count, created_at, updated_at`,
		role.Name, role.DisplayName, role.Permissions, role.IsSystem, role.IsActive, role.Priority).
		Scan(&role.ID, &role.UserCount, &role.CreatedAt, &role.UpdatedAt)
	if isUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: %s", ErrDuplicateName, role.Name)
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// Update rewrites the mutable descriptor fields of a role.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, display_name = $3, is_active = $4, priority = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns,
		role.ID, role.Name, role.DisplayName, role.IsActive, role.Priority)
	updated, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: %s", ErrDuplicateName, role.Name)
	}
	return updated, err
}

// SoftDelete marks a role deleted without removing the row.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddPermissions unions the given codes into the role's set in one atomic
// statement; concurrent mutations cannot lose each other's writes.
func (r *Repository) AddPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET permissions = ARRAY(SELECT DISTINCT p FROM unnest(permissions || $2::text[]) AS p ORDER BY p),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns, id, codes)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// RemovePermissions subtracts the given codes from the role's set atomically.
func (r *Repository) RemovePermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET permissions = ARRAY(SELECT p FROM (SELECT unnest(permissions) AS p EXCEPT SELECT unnest($2::text[])) kept ORDER BY p),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns, id, codes)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// SetPermissions replaces the role's permission set.
func (r *Repository) SetPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET permissions = ARRAY(SELECT DISTINCT p FROM unnest($2::text[]) AS p ORDER BY p),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns, id, codes)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// StoreUserCount persists the denormalized user counter for a role name.
func (r *Repository) StoreUserCount(ctx context.Context, name string, count int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE roles SET user_count = $2, updated_at = now()
		WHERE name = $1 AND deleted_at IS NULL`, name, count)
	return err
}

// ListNames returns the names of all non-deleted roles.
func (r *Repository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM roles WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(
		&role.ID, &role.Name, &role.DisplayName, &role.Permissions,
		&role.IsSystem, &role.IsActive, &role.Priority, &role.UserCount,
		&role.DeletedAt, &role.CreatedAt, &role.UpdatedAt,
	)
	return role, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
