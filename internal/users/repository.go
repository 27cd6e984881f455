package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/shared"
)

const userColumns = `id, email, name, role, custom_permissions, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for the user directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all users ordered by email.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetByID fetches one user.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return user, err
}

// GetUser satisfies the access engine's user directory port. Unknown ids and
// deactivated accounts resolve to not-found so they fail closed.
func (r *Repository) GetUser(ctx context.Context, id string) (access.UserGrants, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return access.UserGrants{}, shared.ErrNotFound
	}
	var grants access.UserGrants
	err = r.pool.QueryRow(ctx, `
		SELECT role, custom_permissions FROM users
		WHERE id = $1 AND is_active`, userID).
		Scan(&grants.Role, &grants.CustomPermissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return access.UserGrants{}, shared.ErrNotFound
	}
	if err != nil {
		return access.UserGrants{}, err
	}
	return grants, nil
}

// CountByRole reports how many users currently hold the role name.
func (r *Repository) CountByRole(ctx context.Context, roleName string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, roleName).Scan(&count)
	return count, err
}

// AssignRole changes the user's role name.
func (r *Repository) AssignRole(ctx context.Context, id uuid.UUID, roleName string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, roleName)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return user, err
}

// SetCustomPermissions replaces the user's ad-hoc permission codes.
func (r *Repository) SetCustomPermissions(ctx context.Context, id uuid.UUID, codes []string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET custom_permissions = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, codes)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return user, err
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Role,
		&user.CustomPermissions, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}
