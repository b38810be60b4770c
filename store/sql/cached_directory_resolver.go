package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/boxyhq/go-dsync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const directoryCacheKeyPrefix = "go-dsync::directory::v1"

// CachedDirectoryResolver wraps a resolver with a read-through cache.
// Directory configuration changes rarely relative to how often the
// dispatcher resolves it, one lookup per directory group per batch.
type CachedDirectoryResolver struct {
	base  core.DirectoryResolver
	cache repositorycache.CacheService
}

func NewCachedDirectoryResolver(
	base core.DirectoryResolver,
	cacheService repositorycache.CacheService,
) (*CachedDirectoryResolver, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base directory resolver is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: directory cache service is required")
	}
	return &CachedDirectoryResolver{base: base, cache: cacheService}, nil
}

// DirectoryCacheKey returns the deterministic cache key contract for
// directory reads: go-dsync::directory::v1::<directory_id> with the id
// URL-path escaped.
func DirectoryCacheKey(directoryID string) (string, error) {
	directoryID = strings.TrimSpace(directoryID)
	if directoryID == "" {
		return "", fmt.Errorf("sqlstore: directory id is required")
	}
	return directoryCacheKeyPrefix + "::" + url.PathEscape(directoryID), nil
}

func (r *CachedDirectoryResolver) Get(ctx context.Context, directoryID string) (core.Directory, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Directory{}, fmt.Errorf("sqlstore: cached directory resolver is not configured")
	}
	cacheKey, err := DirectoryCacheKey(directoryID)
	if err != nil {
		return core.Directory{}, err
	}

	directory, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.Directory, error) {
		return r.base.Get(ctx, strings.TrimSpace(directoryID))
	})
	if err != nil {
		return core.Directory{}, err
	}
	return directory, nil
}

// Invalidate drops the cached entry after a directory's webhook settings
// change so the next batch sees the new configuration.
func (r *CachedDirectoryResolver) Invalidate(ctx context.Context, directoryID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached directory resolver is not configured")
	}
	cacheKey, err := DirectoryCacheKey(directoryID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}
