package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// DefaultManifestTTL is how long a cached permission manifest stays valid.
const DefaultManifestTTL = time.Hour

const manifestKeyPrefix = "user:permissions:"

// ManifestKey returns the cache key holding the manifest for a user.
func ManifestKey(userID int64) string {
	return manifestKeyPrefix + strconv.FormatInt(userID, 10)
}

// IdentityProvider supplies user and role records. Absent records are
// reported as a nil record with a nil error; errors mean the store failed.
type IdentityProvider interface {
	FindUserByID(ctx context.Context, id int64) (*User, error)
	FindRoleByID(ctx context.Context, id int64) (*Role, error)
}

// GrantStore supplies user-level overrides and role-level grants. Single
// lookups return a nil grant when no record matches.
type GrantStore interface {
	FindUserOverride(ctx context.Context, userID int64, permission string) (*Grant, error)
	FindRoleGrant(ctx context.Context, roleID int64, permission string) (*Grant, error)
	ListUserOverrides(ctx context.Context, userID int64) ([]Grant, error)
	ListRoleGrants(ctx context.Context, roleID int64) ([]Grant, error)
}

// CacheStore is the key/value cache consulted on the manifest path. Every
// operation may fail; the engine treats failures as a miss or a no-op.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Metrics receives engine outcome counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveCheck(source Source, authorized bool)
	ObserveManifestCache(hit bool)
}

// EngineConfig collects the engine's collaborators. Identity and Grants are
// required; everything else is optional.
type EngineConfig struct {
	Identity    IdentityProvider
	Grants      GrantStore
	Cache       CacheStore
	Logger      *slog.Logger
	Metrics     Metrics
	ManifestTTL time.Duration
}

// Engine resolves permissions with user-override-then-role precedence and a
// wildcard short-circuit, and maintains the per-user manifest cache. It holds
// no mutable state and is safe for concurrent use; concurrent manifest calls
// may race on cache population, which at worst recomputes the same value.
type Engine struct {
	identity IdentityProvider
	grants   GrantStore
	cache    CacheStore
	logger   *slog.Logger
	metrics  Metrics
	ttl      time.Duration
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Identity == nil {
		return nil, errors.New("authz: identity provider required")
	}
	if cfg.Grants == nil {
		return nil, errors.New("authz: grant store required")
	}
	ttl := cfg.ManifestTTL
	if ttl <= 0 {
		ttl = DefaultManifestTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		identity: cfg.Identity,
		grants:   cfg.Grants,
		cache:    cfg.Cache,
		logger:   logger,
		metrics:  cfg.Metrics,
		ttl:      ttl,
	}, nil
}

// HasPermission decides a single permission check. Resolution order is
// strict: user override first (it wins over everything, including a wildcard
// role), then role wildcard, then role grant, then absent. An unknown user is
// a normal negative result, not an error. The user's status is not rechecked
// here; the authentication step upstream refuses inactive users. This path is
// intentionally uncached.
func (e *Engine) HasPermission(ctx context.Context, userID int64, permission string) (CheckResult, error) {
	override, err := e.grants.FindUserOverride(ctx, userID, permission)
	if err != nil {
		return CheckResult{}, fmt.Errorf("authz: user override lookup: %w", err)
	}
	if override != nil {
		return e.observe(CheckResult{
			Authorized: override.Allowed(),
			Source:     SourceOverride,
			Decision:   override.Decision,
		}), nil
	}

	user, err := e.identity.FindUserByID(ctx, userID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("authz: user lookup: %w", err)
	}
	if user == nil {
		return e.observe(CheckResult{Source: SourceNone, Decision: DecisionAbsent}), nil
	}

	role, err := e.identity.FindRoleByID(ctx, user.RoleID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("authz: role lookup: %w", err)
	}
	if role.HasWildcard() {
		return e.observe(CheckResult{
			Authorized: true,
			Source:     SourceRole,
			Decision:   DecisionAllow,
		}), nil
	}
	if role != nil {
		grant, err := e.grants.FindRoleGrant(ctx, role.ID, permission)
		if err != nil {
			return CheckResult{}, fmt.Errorf("authz: role grant lookup: %w", err)
		}
		if grant != nil {
			return e.observe(CheckResult{
				Authorized: grant.Allowed(),
				Source:     SourceRole,
				Decision:   grant.Decision,
			}), nil
		}
	}

	return e.observe(CheckResult{Source: SourceNone, Decision: DecisionAbsent}), nil
}

// UserPermissions lists every grant resolvable for the user: the wildcard
// sentinel alone for wildcard roles, otherwise user overrides followed by
// role grants whose permission string is not already overridden. Store order
// is preserved within each group. An unknown user yields an empty list.
func (e *Engine) UserPermissions(ctx context.Context, userID int64) ([]ResolvedGrant, error) {
	user, err := e.identity.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: user lookup: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	return e.resolveGrants(ctx, user)
}

func (e *Engine) resolveGrants(ctx context.Context, user *User) ([]ResolvedGrant, error) {
	role, err := e.identity.FindRoleByID(ctx, user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("authz: role lookup: %w", err)
	}
	if role.HasWildcard() {
		return []ResolvedGrant{{
			Permission: PermissionWildcard,
			Source:     SourceRole,
			Decision:   DecisionAllow,
		}}, nil
	}

	overrides, err := e.grants.ListUserOverrides(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("authz: list user overrides: %w", err)
	}
	resolved := make([]ResolvedGrant, 0, len(overrides))
	overridden := make(map[string]struct{}, len(overrides))
	for _, g := range overrides {
		resolved = append(resolved, ResolvedGrant{
			Permission: g.Permission,
			Source:     SourceOverride,
			Decision:   g.Decision,
		})
		overridden[g.Permission] = struct{}{}
	}

	if role != nil {
		roleGrants, err := e.grants.ListRoleGrants(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("authz: list role grants: %w", err)
		}
		for _, g := range roleGrants {
			// Role grants never shadow an override, even a deny.
			if _, ok := overridden[g.Permission]; ok {
				continue
			}
			resolved = append(resolved, ResolvedGrant{
				Permission: g.Permission,
				Source:     SourceRole,
				Decision:   g.Decision,
			})
		}
	}
	return resolved, nil
}

// Manifest computes the permission-to-bool map for a user, read-through cached
// under ManifestKey(userID). An unknown user yields an empty manifest that is
// deliberately not cached; a later lookup for the same id goes back to the
// store.
func (e *Engine) Manifest(ctx context.Context, userID int64) (Manifest, error) {
	key := ManifestKey(userID)
	if payload, ok := e.cacheGet(ctx, key); ok {
		var manifest Manifest
		if err := json.Unmarshal(payload, &manifest); err == nil {
			return manifest, nil
		}
		e.logger.Warn("authz: discarding undecodable cached manifest", slog.String("key", key))
	}

	user, err := e.identity.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: user lookup: %w", err)
	}
	if user == nil {
		return Manifest{}, nil
	}

	entries, err := e.resolveGrants(ctx, user)
	if err != nil {
		return nil, err
	}
	manifest := make(Manifest, len(entries))
	for _, entry := range entries {
		manifest[entry.Permission] = entry.Decision == DecisionAllow
	}
	e.cacheSet(ctx, key, manifest)
	return manifest, nil
}

// InvalidateUser drops the cached manifest for one user. Collaborators that
// mutate that user's overrides must call it after the write.
func (e *Engine) InvalidateUser(ctx context.Context, userID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, ManifestKey(userID)); err != nil {
		e.logger.Warn("authz: invalidate manifest", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// InvalidateAll drops every cached manifest. Collaborators that mutate
// role-level grants must call it, since any number of users share the role.
func (e *Engine) InvalidateAll(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.DeleteByPrefix(ctx, manifestKeyPrefix); err != nil {
		e.logger.Warn("authz: invalidate all manifests", slog.Any("error", err))
	}
}

func (e *Engine) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if e.cache == nil {
		return nil, false
	}
	payload, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		// Cache availability is a performance concern only.
		e.logger.Debug("authz: cache read degraded to miss", slog.String("key", key), slog.Any("error", err))
		ok = false
	}
	if e.metrics != nil {
		e.metrics.ObserveManifestCache(ok)
	}
	return payload, ok
}

func (e *Engine) cacheSet(ctx context.Context, key string, manifest Manifest) {
	if e.cache == nil {
		return
	}
	payload, err := json.Marshal(manifest)
	if err != nil {
		e.logger.Warn("authz: encode manifest", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := e.cache.Set(ctx, key, payload, e.ttl); err != nil {
		e.logger.Debug("authz: cache write skipped", slog.String("key", key), slog.Any("error", err))
	}
}

func (e *Engine) observe(res CheckResult) CheckResult {
	if e.metrics != nil {
		e.metrics.ObserveCheck(res.Source, res.Authorized)
	}
	return res
}
