package rbac

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliohq/folio/internal/platform/store"
)

type fakeRepo struct {
	defs        []Definition
	overrides   map[int64]map[string]bool
	listCalls   int
	failing     bool
	upsertCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{defs: Catalog(), overrides: make(map[int64]map[string]bool)}
}

func (f *fakeRepo) ListDefinitions(ctx context.Context) ([]Definition, error) {
	if f.failing {
		return nil, errors.New("connection refused")
	}
	f.listCalls++
	return f.defs, nil
}

func (f *fakeRepo) UpsertDefinition(ctx context.Context, def Definition) error {
	f.upsertCalls++
	if f.failing {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeRepo) ListOverrides(ctx context.Context, principalID int64) ([]Override, error) {
	if f.failing {
		return nil, errors.New("connection refused")
	}
	var out []Override
	for code, granted := range f.overrides[principalID] {
		out = append(out, Override{PrincipalID: principalID, Code: code, Granted: granted})
	}
	return out, nil
}

func (f *fakeRepo) UpsertOverride(ctx context.Context, ov Override) error {
	if f.failing {
		return errors.New("connection refused")
	}
	if f.overrides[ov.PrincipalID] == nil {
		f.overrides[ov.PrincipalID] = make(map[string]bool)
	}
	f.overrides[ov.PrincipalID][ov.Code] = ov.Granted
	return nil
}

func (f *fakeRepo) DeleteOverride(ctx context.Context, principalID int64, code string) error {
	if f.failing {
		return errors.New("connection refused")
	}
	delete(f.overrides[principalID], code)
	return nil
}

func newResolver(repo Repository) (*Resolver, *store.MemoryStore) {
	cache := store.NewMemoryStore()
	return NewResolver(repo, cache, slog.Default()), cache
}

func defaultCodesFor(role Role) map[string]struct{} {
	set := make(map[string]struct{})
	for _, def := range Catalog() {
		for _, r := range def.DefaultRoles {
			if r == role {
				set[def.Code] = struct{}{}
			}
		}
	}
	return set
}

func TestResolveRoleDefaults(t *testing.T) {
	resolver, _ := newResolver(newFakeRepo())
	ctx := context.Background()

	for _, role := range []Role{RoleAdmin, RoleModerator, RoleUser} {
		set, err := resolver.Resolve(ctx, Principal{ID: int64(role[0]), Role: role})
		require.NoError(t, err)
		assert.Equal(t, defaultCodesFor(role), set, "role %s", role)
	}
}

func TestSuperadminHoldsEverything(t *testing.T) {
	repo := newFakeRepo()
	resolver, _ := newResolver(repo)
	ctx := context.Background()
	boss := Principal{ID: 1, Role: RoleSuperadmin}

	// Even a recorded revoke must not dent the superadmin set.
	repo.overrides[1] = map[string]bool{"finance.transactions.view": false}

	set, err := resolver.Resolve(ctx, boss)
	require.NoError(t, err)
	assert.Len(t, set, len(Catalog()))
	assert.Contains(t, set, "finance.transactions.view")
	assert.Zero(t, repo.listCalls, "superadmin resolution must not read the catalog store")
}

func TestOverridesBeatRoleDefaults(t *testing.T) {
	resolver, _ := newResolver(newFakeRepo())
	ctx := context.Background()
	member := Principal{ID: 42, Role: RoleUser}

	// cv.documents.view is a USER default; finance.transactions.view is not.
	require.NoError(t, resolver.Revoke(ctx, member, "cv.documents.view"))
	require.NoError(t, resolver.Grant(ctx, member, "finance.transactions.view"))

	set, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)
	assert.NotContains(t, set, "cv.documents.view")
	assert.Contains(t, set, "finance.transactions.view")

	// Reset reverts to the role default.
	require.NoError(t, resolver.Reset(ctx, member, "cv.documents.view"))
	set, err = resolver.Resolve(ctx, member)
	require.NoError(t, err)
	assert.Contains(t, set, "cv.documents.view")
}

func TestUnknownCodeRejected(t *testing.T) {
	resolver, _ := newResolver(newFakeRepo())
	ctx := context.Background()
	member := Principal{ID: 7, Role: RoleUser}

	assert.ErrorIs(t, resolver.Grant(ctx, member, "nope.nope.nope"), ErrUnknownPermission)
	assert.ErrorIs(t, resolver.Revoke(ctx, member, "nope.nope.nope"), ErrUnknownPermission)
	assert.ErrorIs(t, resolver.Reset(ctx, member, "nope.nope.nope"), ErrUnknownPermission)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	repo := newFakeRepo()
	resolver, _ := newResolver(repo)
	ctx := context.Background()
	member := Principal{ID: 9, Role: RoleModerator}

	_, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second resolve within TTL must hit the cache")
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	repo := newFakeRepo()
	cache := store.NewMemoryStore()
	resolver := NewResolver(repo, cache, slog.Default())
	ctx := context.Background()
	member := Principal{ID: 10, Role: RoleModerator}

	base := time.Now()
	cache.SetClock(func() time.Time { return base })
	_, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)

	cache.SetClock(func() time.Time { return base.Add(61 * time.Second) })
	_, err = resolver.Resolve(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls, "resolve past TTL must recompute")
}

func TestGrantInvalidatesImmediately(t *testing.T) {
	repo := newFakeRepo()
	resolver, _ := newResolver(repo)
	ctx := context.Background()
	member := Principal{ID: 11, Role: RoleUser}

	set, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)
	require.NotContains(t, set, "finance.reports.view")

	require.NoError(t, resolver.Grant(ctx, member, "finance.reports.view"))

	// Well within the TTL, yet the change must be visible.
	ok, err := resolver.Has(ctx, member, "finance.reports.view")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreDownFallsBackToCacheThenDenies(t *testing.T) {
	repo := newFakeRepo()
	resolver, _ := newResolver(repo)
	ctx := context.Background()
	member := Principal{ID: 12, Role: RoleAdmin}

	set, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)
	require.NotEmpty(t, set)

	repo.failing = true

	// Cached value still serves.
	cached, err := resolver.Resolve(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, set, cached)

	// Nothing cached for a new principal: deny with a store error.
	_, err = resolver.Resolve(ctx, Principal{ID: 13, Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBootstrapReportsFailures(t *testing.T) {
	repo := newFakeRepo()
	resolver, _ := newResolver(repo)
	require.NoError(t, resolver.Bootstrap(context.Background()))
	assert.Equal(t, len(Catalog()), repo.upsertCalls)

	repo.failing = true
	assert.Error(t, resolver.Bootstrap(context.Background()))
}
