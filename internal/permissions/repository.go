package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surveyforge/surveyforge/internal/shared"
)

const uniqueViolation = "23505"

// ErrDuplicateCode indicates a permission code collision on insert or rename.
var ErrDuplicateCode = errors.New("permissions: duplicate code")

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the whole catalog ordered by code.
func (r *Repository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, module, action, description, is_active, is_system, dependencies, created_at, updated_at
		FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Code, &p.Module, &p.Action, &p.Description, &p.IsActive, &p.IsSystem, &p.Dependencies, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListActiveCodes returns every active permission code.
func (r *Repository) ListActiveCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM permissions WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// GetByCode fetches one permission.
func (r *Repository) GetByCode(ctx context.Context, code string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		SELECT code, module, action, description, is_active, is_system, dependencies, created_at, updated_at
		FROM permissions WHERE code = $1`, code).
		Scan(&p.Code, &p.Module, &p.Action, &p.Description, &p.IsActive, &p.IsSystem, &p.Dependencies, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Count reports the catalog size including inactive entries.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Insert stores a new permission.
func (r *Repository) Insert(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (code, module, action, description, is_active, is_system, dependencies)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.Code, p.Module, p.Action, p.Description, p.IsActive, p.IsSystem, p.Dependencies).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return Permission{}, fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Update rewrites a permission row, keyed by its current code.
func (r *Repository) Update(ctx context.Context, currentCode string, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET code = $2, module = $3, action = $4, description = $5, is_active = $6, dependencies = $7, updated_at = now()
		WHERE code = $1
		RETURNING is_system, created_at, updated_at`,
		currentCode, p.Code, p.Module, p.Action, p.Description, p.IsActive, p.Dependencies).
		Scan(&p.IsSystem, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return Permission{}, fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Delete removes a permission row.
func (r *Repository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExistingCodes reports which of the given codes are present in the catalog.
func (r *Repository) ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM permissions WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]struct{}, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		existing[code] = struct{}{}
	}
	return existing, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
