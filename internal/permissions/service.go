package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

// RepositoryPort defines data access methods for the permission catalog.
type RepositoryPort interface {
	List(ctx context.Context) ([]Permission, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	GetByCode(ctx context.Context, code string) (Permission, error)
	Count(ctx context.Context) (int64, error)
	Insert(ctx context.Context, p Permission) (Permission, error)
	Update(ctx context.Context, currentCode string, p Permission) (Permission, error)
	Delete(ctx context.Context, code string) error
	ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error)
}

// Service handles permission catalog administration.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateInput carries administrator input for a new permission.
type CreateInput struct {
	Code         string
	Description  string
	IsActive     bool
	Dependencies []string
}

// UpdateInput carries administrator input for an existing permission. An
// empty Code keeps the current one.
type UpdateInput struct {
	Code         string
	Description  string
	IsActive     bool
	Dependencies []string
}

// ValidationResult partitions an input code list against the catalog.
type ValidationResult struct {
	Valid   []string
	Invalid []string
}

// Bootstrap seeds the system catalog once. It is a no-op when the catalog
// already holds any permission; it never merges or upgrades.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("permissions: bootstrap count: %w", err)
	}
	if count > 0 {
		return nil
	}
	seeded := SeedCatalog()
	for _, p := range seeded {
		if _, err := s.repo.Insert(ctx, p); err != nil {
			return fmt.Errorf("permissions: bootstrap insert %s: %w", p.Code, err)
		}
	}
	if s.logger != nil {
		s.logger.Info("permission catalog seeded", slog.Int("count", len(seeded)))
	}
	return nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx)
}

// ListActiveCodes returns every active permission code.
func (s *Service) ListActiveCodes(ctx context.Context) ([]string, error) {
	return s.repo.ListActiveCodes(ctx)
}

// Get returns one permission.
func (s *Service) Get(ctx context.Context, code string) (Permission, error) {
	p, err := s.repo.GetByCode(ctx, NormalizeCode(code))
	if errors.Is(err, shared.ErrNotFound) {
		return Permission{}, fmt.Errorf("permissions: %s: %w", code, httpx.ErrNotFound)
	}
	return p, err
}

// Create registers an ad-hoc permission.
func (s *Service) Create(ctx context.Context, input CreateInput) (Permission, error) {
	module, action, err := SplitCode(input.Code)
	if err != nil {
		return Permission{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}
	created, err := s.repo.Insert(ctx, Permission{
		Code:         NormalizeCode(input.Code),
		Module:       module,
		Action:       action,
		Description:  strings.TrimSpace(input.Description),
		IsActive:     input.IsActive,
		IsSystem:     false,
		Dependencies: normalizeList(input.Dependencies),
	})
	if errors.Is(err, ErrDuplicateCode) {
		return Permission{}, fmt.Errorf("permissions: code %s already exists: %w", NormalizeCode(input.Code), httpx.ErrConflict)
	}
	if err != nil {
		return Permission{}, err
	}
	return created, nil
}

// Update mutates a permission. System permissions keep their code forever.
func (s *Service) Update(ctx context.Context, code string, input UpdateInput) (Permission, error) {
	code = NormalizeCode(code)
	current, err := s.Get(ctx, code)
	if err != nil {
		return Permission{}, err
	}

	nextCode := current.Code
	if input.Code != "" && NormalizeCode(input.Code) != current.Code {
		if current.IsSystem {
			return Permission{}, fmt.Errorf("permissions: system permission %s cannot be renamed: %w", current.Code, httpx.ErrInvariant)
		}
		nextCode = NormalizeCode(input.Code)
	}
	module, action, err := SplitCode(nextCode)
	if err != nil {
		return Permission{}, fmt.Errorf("%s: %w", err, httpx.ErrValidation)
	}

	updated, err := s.repo.Update(ctx, code, Permission{
		Code:         nextCode,
		Module:       module,
		Action:       action,
		Description:  strings.TrimSpace(input.Description),
		IsActive:     input.IsActive,
		Dependencies: normalizeList(input.Dependencies),
	})
	if errors.Is(err, ErrDuplicateCode) {
		return Permission{}, fmt.Errorf("permissions: code %s already exists: %w", nextCode, httpx.ErrConflict)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return Permission{}, fmt.Errorf("permissions: %s: %w", code, httpx.ErrNotFound)
	}
	if err != nil {
		return Permission{}, err
	}
	return updated, nil
}

// Remove deletes a non-system permission from the catalog.
func (s *Service) Remove(ctx context.Context, code string) error {
	current, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return fmt.Errorf("permissions: system permission %s cannot be deleted: %w", current.Code, httpx.ErrInvariant)
	}
	if err := s.repo.Delete(ctx, current.Code); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("permissions: %s: %w", code, httpx.ErrNotFound)
		}
		return err
	}
	return nil
}

// ValidateCodes partitions the input into codes present in the catalog and
// codes absent from it. Callers such as role editors use it to pre-check
// input; nothing enforces it automatically.
func (s *Service) ValidateCodes(ctx context.Context, codes []string) (ValidationResult, error) {
	normalized := normalizeList(codes)
	if len(normalized) == 0 {
		return ValidationResult{}, nil
	}
	existing, err := s.repo.ExistingCodes(ctx, normalized)
	if err != nil {
		return ValidationResult{}, err
	}
	result := ValidationResult{}
	for _, code := range normalized {
		if _, ok := existing[code]; ok {
			result.Valid = append(result.Valid, code)
		} else {
			result.Invalid = append(result.Invalid, code)
		}
	}
	return result, nil
}

// DependenciesSatisfied reports which declared dependencies of code are not
// covered by heldCodes. Advisory tooling only; the decision engine never
// consults the dependency graph.
func (s *Service) DependenciesSatisfied(ctx context.Context, code string, heldCodes []string) ([]string, error) {
	p, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(heldCodes))
	for _, c := range heldCodes {
		held[NormalizeCode(c)] = struct{}{}
	}
	var missing []string
	for _, dep := range p.Dependencies {
		if _, ok := held[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing, nil
}

func normalizeList(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for c := range unique {
		normalized = append(normalized, c)
	}
	sort.Strings(normalized)
	return normalized
}
