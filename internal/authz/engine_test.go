package authz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	users map[int64]*User
	roles map[int64]*Role

	userOverrides map[int64][]Grant
	roleGrants    map[int64][]Grant

	userLookupErr    error
	roleLookupErr    error
	overrideErr      error
	roleGrantErr     error
	userLookupCalls  int
	overrideCalls    int
	listRoleCalls    int
	listOverrideHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[int64]*User),
		roles:         make(map[int64]*Role),
		userOverrides: make(map[int64][]Grant),
		roleGrants:    make(map[int64][]Grant),
	}
}

func (s *fakeStore) FindUserByID(ctx context.Context, id int64) (*User, error) {
	s.userLookupCalls++
	if s.userLookupErr != nil {
		return nil, s.userLookupErr
	}
	return s.users[id], nil
}

func (s *fakeStore) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	if s.roleLookupErr != nil {
		return nil, s.roleLookupErr
	}
	return s.roles[id], nil
}

func (s *fakeStore) FindUserOverride(ctx context.Context, userID int64, permission string) (*Grant, error) {
	s.overrideCalls++
	if s.overrideErr != nil {
		return nil, s.overrideErr
	}
	for _, g := range s.userOverrides[userID] {
		if g.Permission == permission {
			return &g, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindRoleGrant(ctx context.Context, roleID int64, permission string) (*Grant, error) {
	if s.roleGrantErr != nil {
		return nil, s.roleGrantErr
	}
	for _, g := range s.roleGrants[roleID] {
		if g.Permission == permission {
			return &g, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListUserOverrides(ctx context.Context, userID int64) ([]Grant, error) {
	s.listOverrideHits++
	if s.overrideErr != nil {
		return nil, s.overrideErr
	}
	return s.userOverrides[userID], nil
}

func (s *fakeStore) ListRoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	s.listRoleCalls++
	if s.roleGrantErr != nil {
		return nil, s.roleGrantErr
	}
	return s.roleGrants[roleID], nil
}

type fakeCache struct {
	entries map[string][]byte
	ttls    map[string]time.Duration

	getCalls int
	setCalls int
	getErr   error
	setErr   error
	delErr   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.getCalls++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.setCalls++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	if c.delErr != nil {
		return c.delErr
	}
	delete(c.entries, key)
	delete(c.ttls, key)
	return nil
}

func (c *fakeCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	if c.delErr != nil {
		return c.delErr
	}
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			delete(c.ttls, key)
		}
	}
	return nil
}

// seedWorkedExample builds user 42 on role 7, where the role allows
// leave.read and the user carries a deny override on leave.delete.
func seedWorkedExample() *fakeStore {
	store := newFakeStore()
	store.users[42] = &User{ID: 42, RoleID: 7, Status: "active"}
	store.roles[7] = &Role{ID: 7, Name: "employee", Permissions: []string{}}
	store.roleGrants[7] = []Grant{
		{Permission: "leave.read", Decision: DecisionAllow},
		{Permission: "leave.delete", Decision: DecisionAllow},
	}
	store.userOverrides[42] = []Grant{
		{Permission: "leave.delete", Decision: DecisionDeny},
	}
	return store
}

func newTestEngine(t *testing.T, store *fakeStore, cache CacheStore) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{Identity: store, Grants: store, Cache: cache})
	require.NoError(t, err)
	return engine
}

func TestNewEngineRequiresStores(t *testing.T) {
	_, err := NewEngine(EngineConfig{Grants: newFakeStore()})
	require.Error(t, err)
	_, err = NewEngine(EngineConfig{Identity: newFakeStore()})
	require.Error(t, err)
}

func TestHasPermissionRoleGrant(t *testing.T) {
	store := seedWorkedExample()
	engine := newTestEngine(t, store, nil)

	res, err := engine.HasPermission(context.Background(), 42, "leave.read")
	require.NoError(t, err)
	require.True(t, res.Authorized)
	require.Equal(t, SourceRole, res.Source)
	require.Equal(t, DecisionAllow, res.Decision)
}

func TestHasPermissionOverrideDenyWinsOverRoleAllow(t *testing.T) {
	store := seedWorkedExample()
	engine := newTestEngine(t, store, nil)

	res, err := engine.HasPermission(context.Background(), 42, "leave.delete")
	require.NoError(t, err)
	require.False(t, res.Authorized)
	require.Equal(t, SourceOverride, res.Source)
	require.Equal(t, DecisionDeny, res.Decision)
}

func TestHasPermissionOverrideShortCircuitsUserLookup(t *testing.T) {
	store := seedWorkedExample()
	engine := newTestEngine(t, store, nil)

	_, err := engine.HasPermission(context.Background(), 42, "leave.delete")
	require.NoError(t, err)
	require.Zero(t, store.userLookupCalls)
}

func TestHasPermissionOverrideDenyBeatsWildcardRole(t *testing.T) {
	store := newFakeStore()
	store.users[1] = &User{ID: 1, RoleID: 2}
	store.roles[2] = &Role{ID: 2, Name: "admin", Permissions: []string{PermissionWildcard}}
	store.userOverrides[1] = []Grant{{Permission: "payroll.run", Decision: DecisionDeny}}
	engine := newTestEngine(t, store, nil)

	res, err := engine.HasPermission(context.Background(), 1, "payroll.run")
	require.NoError(t, err)
	require.False(t, res.Authorized)
	require.Equal(t, SourceOverride, res.Source)
}

func TestHasPermissionWildcardRoleAllowsAnything(t *testing.T) {
	store := newFakeStore()
	store.users[1] = &User{ID: 1, RoleID: 2}
	store.roles[2] = &Role{ID: 2, Name: "admin", Permissions: []string{PermissionWildcard}}
	engine := newTestEngine(t, store, nil)

	res, err := engine.HasPermission(context.Background(), 1, "anything.at.all")
	require.NoError(t, err)
	require.True(t, res.Authorized)
	require.Equal(t, SourceRole, res.Source)
	require.Equal(t, DecisionAllow, res.Decision)
}

func TestHasPermissionUnknownUserIsAbsent(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), nil)

	res, err := engine.HasPermission(context.Background(), 9999, "leave.read")
	require.NoError(t, err)
	require.False(t, res.Authorized)
	require.Equal(t, SourceNone, res.Source)
	require.Equal(t, DecisionAbsent, res.Decision)
}

func TestHasPermissionMissingRoleFallsThroughToAbsent(t *testing.T) {
	store := newFakeStore()
	store.users[5] = &User{ID: 5, RoleID: 404}
	engine := newTestEngine(t, store, nil)

	res, err := engine.HasPermission(context.Background(), 5, "leave.read")
	require.NoError(t, err)
	require.False(t, res.Authorized)
	require.Equal(t, SourceNone, res.Source)
}

func TestHasPermissionStoreErrorPropagates(t *testing.T) {
	store := seedWorkedExample()
	store.overrideErr = errors.New("connection refused")
	engine := newTestEngine(t, store, nil)

	_, err := engine.HasPermission(context.Background(), 42, "leave.read")
	require.Error(t, err)
	require.ErrorContains(t, err, "user override lookup")
}

func TestUserPermissionsOverridesFirstThenDisjointRoleGrants(t *testing.T) {
	store := seedWorkedExample()
	engine := newTestEngine(t, store, nil)

	grants, err := engine.UserPermissions(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.Equal(t, ResolvedGrant{Permission: "leave.delete", Source: SourceOverride, Decision: DecisionDeny}, grants[0])
	require.Equal(t, ResolvedGrant{Permission: "leave.read", Source: SourceRole, Decision: DecisionAllow}, grants[1])
}

func TestUserPermissionsWildcardCollapsesToSentinel(t *testing.T) {
	store := newFakeStore()
	store.users[1] = &User{ID: 1, RoleID: 2}
	store.roles[2] = &Role{ID: 2, Name: "admin", Permissions: []string{"reports.view", PermissionWildcard}}
	store.roleGrants[2] = []Grant{{Permission: "reports.view", Decision: DecisionAllow}}
	engine := newTestEngine(t, store, nil)

	grants, err := engine.UserPermissions(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []ResolvedGrant{{Permission: PermissionWildcard, Source: SourceRole, Decision: DecisionAllow}}, grants)
	require.Zero(t, store.listRoleCalls, "wildcard must short-circuit grant listing")
}

func TestUserPermissionsUnknownUserIsEmpty(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), nil)

	grants, err := engine.UserPermissions(context.Background(), 12345)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestManifestComputesAndCaches(t *testing.T) {
	store := seedWorkedExample()
	cache := newFakeCache()
	engine := newTestEngine(t, store, cache)

	manifest, err := engine.Manifest(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, Manifest{"leave.read": true, "leave.delete": false}, manifest)
	require.Equal(t, 1, cache.setCalls)
	require.Equal(t, DefaultManifestTTL, cache.ttls[ManifestKey(42)])

	// Second read is served from cache without touching the store.
	userLookups := store.userLookupCalls
	again, err := engine.Manifest(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, manifest, again)
	require.Equal(t, userLookups, store.userLookupCalls)
}

func TestManifestWildcardCollapses(t *testing.T) {
	store := newFakeStore()
	store.users[1] = &User{ID: 1, RoleID: 2}
	store.roles[2] = &Role{ID: 2, Name: "admin", Permissions: []string{PermissionWildcard}}
	engine := newTestEngine(t, store, newFakeCache())

	manifest, err := engine.Manifest(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, Manifest{PermissionWildcard: true}, manifest)
}

func TestManifestUnknownUserNotCached(t *testing.T) {
	cache := newFakeCache()
	engine := newTestEngine(t, newFakeStore(), cache)

	manifest, err := engine.Manifest(context.Background(), 77)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	require.Empty(t, manifest)
	require.Zero(t, cache.setCalls)
	require.NotContains(t, cache.entries, ManifestKey(77))
}

func TestManifestDiscardsUndecodableCacheEntry(t *testing.T) {
	store := seedWorkedExample()
	cache := newFakeCache()
	cache.entries[ManifestKey(42)] = []byte("{not json")
	engine := newTestEngine(t, store, cache)

	manifest, err := engine.Manifest(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, Manifest{"leave.read": true, "leave.delete": false}, manifest)

	var stored Manifest
	require.NoError(t, json.Unmarshal(cache.entries[ManifestKey(42)], &stored))
	require.Equal(t, manifest, stored)
}

func TestManifestSurvivesFailingCache(t *testing.T) {
	store := seedWorkedExample()
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	engine := newTestEngine(t, store, cache)

	manifest, err := engine.Manifest(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, Manifest{"leave.read": true, "leave.delete": false}, manifest)

	// Every call recomputes while the cache stays down.
	userLookups := store.userLookupCalls
	_, err = engine.Manifest(context.Background(), 42)
	require.NoError(t, err)
	require.Greater(t, store.userLookupCalls, userLookups)
}

func TestManifestStoreErrorPropagates(t *testing.T) {
	store := seedWorkedExample()
	store.userLookupErr = errors.New("pg down")
	engine := newTestEngine(t, store, newFakeCache())

	_, err := engine.Manifest(context.Background(), 42)
	require.Error(t, err)
	require.ErrorContains(t, err, "user lookup")
}

func TestInvalidateUserForcesRecompute(t *testing.T) {
	store := seedWorkedExample()
	cache := newFakeCache()
	engine := newTestEngine(t, store, cache)
	ctx := context.Background()

	_, err := engine.Manifest(ctx, 42)
	require.NoError(t, err)

	// Flip the override to allow and invalidate; the next read must see it.
	store.userOverrides[42] = []Grant{{Permission: "leave.delete", Decision: DecisionAllow}}
	engine.InvalidateUser(ctx, 42)

	manifest, err := engine.Manifest(ctx, 42)
	require.NoError(t, err)
	require.True(t, manifest["leave.delete"])
}

func TestInvalidateAllDropsEveryManifest(t *testing.T) {
	store := seedWorkedExample()
	store.users[43] = &User{ID: 43, RoleID: 7, Status: "active"}
	cache := newFakeCache()
	engine := newTestEngine(t, store, cache)
	ctx := context.Background()

	_, err := engine.Manifest(ctx, 42)
	require.NoError(t, err)
	_, err = engine.Manifest(ctx, 43)
	require.NoError(t, err)
	require.Len(t, cache.entries, 2)

	engine.InvalidateAll(ctx)
	require.Empty(t, cache.entries)
}

func TestInvalidateAbsorbsCacheErrors(t *testing.T) {
	cache := newFakeCache()
	cache.delErr = errors.New("redis down")
	engine := newTestEngine(t, seedWorkedExample(), cache)

	// Neither call panics or returns; degraded invalidation is logged only.
	engine.InvalidateUser(context.Background(), 42)
	engine.InvalidateAll(context.Background())
}

func TestEngineWithoutCacheStillResolves(t *testing.T) {
	store := seedWorkedExample()
	engine := newTestEngine(t, store, nil)
	ctx := context.Background()

	manifest, err := engine.Manifest(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, Manifest{"leave.read": true, "leave.delete": false}, manifest)

	engine.InvalidateUser(ctx, 42)
	engine.InvalidateAll(ctx)
}

func TestManifestKeyLayout(t *testing.T) {
	require.Equal(t, "user:permissions:42", ManifestKey(42))
}
