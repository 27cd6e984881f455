package roles

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surveyforge/surveyforge/internal/platform/httpx"
	"github.com/surveyforge/surveyforge/internal/shared"
)

type memoryRoleRepo struct {
	roles  map[int64]Role
	nextID int64
}

func newMemoryRoleRepo(seed ...Role) *memoryRoleRepo {
	repo := &memoryRoleRepo{roles: make(map[int64]Role)}
	for _, r := range seed {
		repo.nextID++
		r.ID = repo.nextID
		repo.roles[r.ID] = r
	}
	return repo
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		if role.DeletedAt == nil {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRoleRepo) GetByID(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok || role.DeletedAt != nil {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) FindByName(ctx context.Context, name string) (Role, error) {
	for _, role := range r.roles {
		if role.DeletedAt == nil && role.Name == name {
			return role, nil
		}
	}
	return Role{}, shared.ErrNotFound
}

func (r *memoryRoleRepo) Insert(ctx context.Context, role Role) (Role, error) {
	if _, err := r.FindByName(ctx, role.Name); err == nil {
		return Role{}, ErrDuplicateName
	}
	r.nextID++
	role.ID = r.nextID
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Update(ctx context.Context, role Role) (Role, error) {
	current, err := r.GetByID(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	if existing, err := r.FindByName(ctx, role.Name); err == nil && existing.ID != role.ID {
		return Role{}, ErrDuplicateName
	}
	current.Name = role.Name
	current.DisplayName = role.DisplayName
	current.IsActive = role.IsActive
	current.Priority = role.Priority
	current.UpdatedAt = time.Now()
	r.roles[current.ID] = current
	return current, nil
}

func (r *memoryRoleRepo) SoftDelete(ctx context.Context, id int64) error {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	role.DeletedAt = &now
	r.roles[id] = role
	return nil
}

func (r *memoryRoleRepo) AddPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	set := make(map[string]struct{}, len(role.Permissions))
	for _, c := range role.Permissions {
		set[c] = struct{}{}
	}
	for _, c := range codes {
		if _, ok := set[c]; !ok {
			set[c] = struct{}{}
			role.Permissions = append(role.Permissions, c)
		}
	}
	sort.Strings(role.Permissions)
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) RemovePermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	drop := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		drop[c] = struct{}{}
	}
	kept := role.Permissions[:0]
	for _, c := range role.Permissions {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	role.Permissions = kept
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) SetPermissions(ctx context.Context, id int64, codes []string) (Role, error) {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = append([]string(nil), codes...)
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) StoreUserCount(ctx context.Context, name string, count int64) error {
	for id, role := range r.roles {
		if role.DeletedAt == nil && role.Name == name {
			role.UserCount = count
			r.roles[id] = role
		}
	}
	return nil
}

type memoryUserCounter struct {
	counts map[string]int64
}

func (c *memoryUserCounter) CountByRole(ctx context.Context, name string) (int64, error) {
	return c.counts[name], nil
}

func newTestService(repo *memoryRoleRepo, counts map[string]int64) *Service {
	if counts == nil {
		counts = map[string]int64{}
	}
	return NewService(repo, &memoryUserCounter{counts: counts})
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		Name:        "  Editor ",
		DisplayName: "Survey Editor",
		Permissions: []string{"Survey:View", "survey:view", "survey:update"},
		IsActive:    true,
	})
	require.NoError(t, err)
	require.Equal(t, "editor", created.Name)
	require.Equal(t, []string{"survey:view", "survey:update"}, created.Permissions)
	require.False(t, created.IsSystem)

	_, err = svc.Create(ctx, CreateInput{Name: "EDITOR"})
	require.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.Create(ctx, CreateInput{Name: "   "})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateProtectsSystemRoles(t *testing.T) {
	repo := newMemoryRoleRepo(Role{Name: "admin", IsSystem: true, IsActive: true, Priority: 80})
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, 1, UpdateInput{Name: "administrator", Priority: 80, IsActive: true})
	require.ErrorIs(t, err, httpx.ErrInvariant)

	_, err = svc.Update(ctx, 1, UpdateInput{Name: "admin", Priority: 10, IsActive: true})
	require.ErrorIs(t, err, httpx.ErrInvariant)

	// Display name and activation are fair game.
	updated, err := svc.Update(ctx, 1, UpdateInput{Name: "admin", DisplayName: "Administrator", Priority: 80, IsActive: false})
	require.NoError(t, err)
	require.Equal(t, "Administrator", updated.DisplayName)
	require.False(t, updated.IsActive)
}

func TestRemoveRefusesSystemAndHeldRoles(t *testing.T) {
	repo := newMemoryRoleRepo(
		Role{Name: "admin", IsSystem: true, IsActive: true},
		Role{Name: "editor", IsActive: true},
		Role{Name: "abandoned", IsActive: true},
	)
	svc := newTestService(repo, map[string]int64{"editor": 3})
	ctx := context.Background()

	err := svc.Remove(ctx, 1)
	require.ErrorIs(t, err, httpx.ErrInvariant)

	err = svc.Remove(ctx, 2)
	require.ErrorIs(t, err, httpx.ErrInvariant)
	require.Contains(t, err.Error(), "3 users")

	require.NoError(t, svc.Remove(ctx, 3))
	_, err = svc.Get(ctx, 3)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestRemoveFreesNameForReuse(t *testing.T) {
	repo := newMemoryRoleRepo(Role{Name: "temp", IsActive: true})
	svc := newTestService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Remove(ctx, 1))
	created, err := svc.Create(ctx, CreateInput{Name: "temp", IsActive: true})
	require.NoError(t, err)
	require.NotEqual(t, int64(1), created.ID)
}

func TestPermissionMutations(t *testing.T) {
	repo := newMemoryRoleRepo(Role{Name: "editor", IsActive: true, Permissions: []string{"survey:view"}})
	svc := newTestService(repo, nil)
	ctx := context.Background()

	role, err := svc.AddPermissions(ctx, 1, []string{"Survey:Update", "survey:view"})
	require.NoError(t, err)
	require.Equal(t, []string{"survey:update", "survey:view"}, role.Permissions)

	role, err = svc.RemovePermissions(ctx, 1, []string{"survey:view", "never:granted"})
	require.NoError(t, err)
	require.Equal(t, []string{"survey:update"}, role.Permissions)

	role, err = svc.SetPermissions(ctx, 1, []string{"dashboard:view"})
	require.NoError(t, err)
	require.Equal(t, []string{"dashboard:view"}, role.Permissions)

	_, err = svc.AddPermissions(ctx, 99, []string{"survey:view"})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestRecountUsersStoresDenormalizedCount(t *testing.T) {
	repo := newMemoryRoleRepo(Role{Name: "editor", IsActive: true})
	svc := newTestService(repo, map[string]int64{"editor": 7})

	count, err := svc.RecountUsers(context.Background(), "editor")
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.Equal(t, int64(7), repo.roles[1].UserCount)
}
