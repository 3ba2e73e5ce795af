// Package categories resolves category/group/subgroup names into a chain of
// storefront category ids, creating missing levels on the way.
package categories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
	"github.com/angelmondragon/catalogsync/pkg/redis"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

const (
	defaultPerPage  = 200
	defaultMaxPages = 50
)

// Remote is the storefront surface the resolver needs.
type Remote interface {
	ListCategories(ctx context.Context, parentID int64, page, perPage int) ([]storefront.Category, error)
	CreateCategory(ctx context.Context, name string, parentID int64) (*storefront.Category, error)
}

// Path is a resolved chain of ids, root first.
type Path struct {
	LeafID  int64   `json:"leaf_id"`
	PathIDs []int64 `json:"path_ids"`
	Created int     `json:"created"`
	// Cached counts levels answered from the lookup cache without a remote read.
	Cached int `json:"cached"`
}

// Options tune the resolver.
type Options struct {
	StoreID  string
	Cache    redis.KeyValueStore
	CacheTTL time.Duration
	PerPage  int
	MaxPages int
	Metrics  *metrics.SyncMetrics
	Logger   *logger.Logger
}

// Resolver finds or creates category paths. The optional cache only short
// cuts lookups; correctness relies on the normalized name match.
type Resolver struct {
	remote   Remote
	cache    redis.KeyValueStore
	storeID  string
	ttl      time.Duration
	perPage  int
	maxPages int
	metrics  *metrics.SyncMetrics
	logg     *logger.Logger
}

// NewResolver builds a resolver over remote.
func NewResolver(remote Remote, opts Options) (*Resolver, error) {
	if remote == nil {
		return nil, fmt.Errorf("storefront category client required")
	}
	r := &Resolver{
		remote:   remote,
		cache:    opts.Cache,
		storeID:  opts.StoreID,
		ttl:      opts.CacheTTL,
		perPage:  opts.PerPage,
		maxPages: opts.MaxPages,
		metrics:  opts.Metrics,
		logg:     opts.Logger,
	}
	if r.perPage <= 0 {
		r.perPage = defaultPerPage
	}
	if r.maxPages <= 0 {
		r.maxPages = defaultMaxPages
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.ttl <= 0 {
		r.cache = nil
	}
	return r, nil
}

// EnsurePath resolves names level by level. Blank names are dropped; when
// nothing is left the result is nil. A category limit error from the
// storefront stops the pass and is returned unchanged. When a cached level
// turns out to be gone remotely, the path is evicted and resolved once more
// from the live tree.
func (r *Resolver) EnsurePath(ctx context.Context, names []string) (*Path, error) {
	clean := cleanNames(names)
	if len(clean) == 0 {
		return nil, nil
	}
	path, err := r.resolve(ctx, clean, true)
	if err != nil && path != nil && path.Cached > 0 && pkgerrors.IsCode(err, pkgerrors.CodeRemoteNotFound) {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "cached category vanished remotely, resolving again")
		r.forget(ctx, clean)
		path, err = r.resolve(ctx, clean, false)
	}
	if err != nil {
		return nil, err
	}
	return path, nil
}

// Forget drops every cached level of names, for callers that find a resolved
// leaf rejected by the storefront.
func (r *Resolver) Forget(ctx context.Context, names []string) {
	r.forget(ctx, cleanNames(names))
}

func cleanNames(names []string) []string {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

// resolve walks the levels. On error the partial path is returned so the
// caller can see whether cached levels were involved.
func (r *Resolver) resolve(ctx context.Context, clean []string, useCache bool) (*Path, error) {
	path := &Path{PathIDs: make([]int64, 0, len(clean))}
	var parentID int64
	for _, name := range clean {
		target := Normalize(name)
		if useCache {
			if id, ok := r.cached(ctx, parentID, target); ok {
				path.Cached++
				path.PathIDs = append(path.PathIDs, id)
				parentID = id
				continue
			}
		}
		id, created, err := r.ensureChild(ctx, parentID, name, target)
		if err != nil {
			return path, err
		}
		if created {
			path.Created++
		}
		path.PathIDs = append(path.PathIDs, id)
		parentID = id
	}
	path.LeafID = parentID
	return path, nil
}

func (r *Resolver) ensureChild(ctx context.Context, parentID int64, name, target string) (int64, bool, error) {
	found, err := r.findChild(ctx, parentID, target)
	if err != nil {
		return 0, false, err
	}
	if found > 0 {
		r.remember(ctx, parentID, target, found)
		return found, false, nil
	}

	created, err := r.remote.CreateCategory(ctx, name, parentID)
	if err != nil {
		return 0, false, err
	}
	id := created.ID.Int64()
	r.metrics.IncCategoryCreated()
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"category_id": id,
		"parent_id":   parentID,
		"name":        name,
	}), "storefront category created")
	r.remember(ctx, parentID, target, id)
	return id, true, nil
}

func (r *Resolver) findChild(ctx context.Context, parentID int64, target string) (int64, error) {
	for page := 1; page <= r.maxPages; page++ {
		batch, err := r.remote.ListCategories(ctx, parentID, page, r.perPage)
		if err != nil {
			return 0, err
		}
		for _, cat := range batch {
			if cat.Parent.Int64() != parentID {
				continue
			}
			if nameMatches(cat.Name, target) {
				return cat.ID.Int64(), nil
			}
		}
		if len(batch) < r.perPage {
			return 0, nil
		}
	}
	r.logg.Warn(r.logg.WithField(ctx, "parent_id", parentID), "category listing exceeded page limit")
	return 0, pkgerrors.Newf(pkgerrors.CodeStateConflict,
		"categories under parent %d exceed %d pages; refusing to create a possible duplicate", parentID, r.maxPages)
}

func nameMatches(name storefront.LocalizedText, target string) bool {
	for _, v := range name {
		if Normalize(v) == target {
			return true
		}
	}
	return false
}

func (r *Resolver) cached(ctx context.Context, parentID int64, target string) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	raw, err := r.cache.Get(ctx, redis.CategoryKey(r.storeID, parentID, target))
	if err != nil {
		if !redis.IsNil(err) {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "category cache read failed")
		}
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (r *Resolver) remember(ctx context.Context, parentID int64, target string, id int64) {
	if r.cache == nil {
		return
	}
	key := redis.CategoryKey(r.storeID, parentID, target)
	if err := r.cache.Set(ctx, key, strconv.FormatInt(id, 10), r.ttl); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "category cache write failed")
	}
}

// forget deletes the cache keys of a path. Keys depend on the parent id, so
// they are read level by level before deletion.
func (r *Resolver) forget(ctx context.Context, clean []string) {
	if r.cache == nil {
		return
	}
	var keys []string
	var parentID int64
	for _, name := range clean {
		target := Normalize(name)
		keys = append(keys, redis.CategoryKey(r.storeID, parentID, target))
		id, ok := r.cached(ctx, parentID, target)
		if !ok {
			break
		}
		parentID = id
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "category cache eviction failed")
	}
}
