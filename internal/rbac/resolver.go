package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/foliohq/folio/internal/platform/store"
)

// cacheTTL bounds how stale an effective permission set may be served.
const cacheTTL = 60 * time.Second

// Resolver computes effective permission sets. Resolutions are cached per
// principal; any override write invalidates the entry immediately rather
// than waiting out the TTL.
type Resolver struct {
	repo   Repository
	cache  store.Store
	logger *slog.Logger
	known  map[string]struct{}
	group  singleflight.Group
}

// NewResolver constructs a Resolver over the catalog repository and an
// injected cache store.
func NewResolver(repo Repository, cache store.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  cache,
		logger: logger,
		known:  KnownCodes(),
	}
}

// Bootstrap syncs the in-code catalog into the store, upserting by code.
// Failures are reported to the caller, which logs them and proceeds:
// resolution keeps working against whatever catalog rows already exist.
func (r *Resolver) Bootstrap(ctx context.Context) error {
	var failed []string
	for _, def := range Catalog() {
		if err := r.repo.UpsertDefinition(ctx, def); err != nil {
			failed = append(failed, def.Code)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("rbac: catalog sync failed for %d of %d codes", len(failed), len(Catalog()))
	}
	return nil
}

// Resolve returns the effective permission set for principal.
//
// SUPERADMIN short-circuits to every known code without touching the
// catalog store. Otherwise the set seeds from the role defaults, then every
// override is applied on top. Concurrent cache misses for the same
// principal collapse into one recomputation.
func (r *Resolver) Resolve(ctx context.Context, principal Principal) (map[string]struct{}, error) {
	if principal.Role == RoleSuperadmin {
		all := make(map[string]struct{}, len(r.known))
		for code := range r.known {
			all[code] = struct{}{}
		}
		return all, nil
	}

	key := r.cacheKey(principal.ID)
	if data, err := r.cache.Get(ctx, key); err == nil {
		var codes []string
		if err := json.Unmarshal(data, &codes); err == nil {
			return toSet(codes), nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		codes, err := r.compute(ctx, principal)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(codes); err == nil {
			if err := r.cache.Set(ctx, key, data, cacheTTL); err != nil && r.logger != nil {
				r.logger.Warn("permission cache write", slog.Any("error", err))
			}
		}
		return codes, nil
	})
	if err != nil {
		// Catalog store down and nothing cached: deny.
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return toSet(v.([]string)), nil
}

// Has reports whether principal holds code.
func (r *Resolver) Has(ctx context.Context, principal Principal, code string) (bool, error) {
	set, err := r.Resolve(ctx, principal)
	if err != nil {
		return false, err
	}
	_, ok := set[code]
	return ok, nil
}

// Grant records a granted=true override and invalidates the cache entry.
func (r *Resolver) Grant(ctx context.Context, principal Principal, code string) error {
	return r.writeOverride(ctx, principal, code, true)
}

// Revoke records a granted=false override and invalidates the cache entry.
// A revoke removes the code even when the principal's role grants it.
func (r *Resolver) Revoke(ctx context.Context, principal Principal, code string) error {
	return r.writeOverride(ctx, principal, code, false)
}

// Reset deletes the override so the code reverts to its role default.
func (r *Resolver) Reset(ctx context.Context, principal Principal, code string) error {
	if _, ok := r.known[code]; !ok {
		return ErrUnknownPermission
	}
	if err := r.repo.DeleteOverride(ctx, principal.ID, code); err != nil {
		return err
	}
	return r.invalidate(ctx, principal.ID)
}

// Invalidate drops the cached set for a principal, forcing recomputation on
// the next resolve. Used when a principal's role changes.
func (r *Resolver) Invalidate(ctx context.Context, principalID int64) error {
	return r.invalidate(ctx, principalID)
}

func (r *Resolver) writeOverride(ctx context.Context, principal Principal, code string, granted bool) error {
	if _, ok := r.known[code]; !ok {
		return ErrUnknownPermission
	}
	if err := r.repo.UpsertOverride(ctx, Override{PrincipalID: principal.ID, Code: code, Granted: granted}); err != nil {
		return err
	}
	return r.invalidate(ctx, principal.ID)
}

func (r *Resolver) invalidate(ctx context.Context, principalID int64) error {
	if err := r.cache.Delete(ctx, r.cacheKey(principalID)); err != nil {
		if r.logger != nil {
			r.logger.Warn("permission cache invalidate", slog.Int64("principal", principalID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

func (r *Resolver) compute(ctx context.Context, principal Principal) ([]string, error) {
	defs, err := r.repo.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, def := range defs {
		for _, role := range def.DefaultRoles {
			if role == principal.Role {
				set[def.Code] = struct{}{}
				break
			}
		}
	}
	overrides, err := r.repo.ListOverrides(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	for _, ov := range overrides {
		if ov.Granted {
			set[ov.Code] = struct{}{}
		} else {
			delete(set, ov.Code)
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *Resolver) cacheKey(principalID int64) string {
	return "rbac:effective:" + strconv.FormatInt(principalID, 10)
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
