package sync

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/cache"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Collection is the read/write path for one entity kind: the remote store is
// the source of truth and the cache is written through on every successful
// call. Collections are created by [NewRepository].
type Collection[T any] struct {
	store  remote.Store
	schema model.Schema[T]
	cache  *cache.Cache[T]
	group  singleflight.Group
	inst   *instruments
	log    *slog.Logger
}

func newCollection[T any](store remote.Store, schema model.Schema[T], inst *instruments, logger *slog.Logger) *Collection[T] {
	return &Collection[T]{
		store:  store,
		schema: schema,
		cache:  cache.New[T](),
		inst:   inst,
		log:    logger.With("collection", schema.Collection),
	}
}

const listAllKey = "\x00all"

// FetchAll returns the entities matching q. The empty query is served from
// the cache when it holds a fresh full listing; otherwise the listing is
// loaded once, shared by concurrent callers, and cached.
func (c *Collection[T]) FetchAll(ctx context.Context, q remote.Query) (_ []T, err error) {
	ctx, done := c.inst.start(ctx, c.schema.Collection, "fetch_all")
	defer func() { done(err) }()

	if !q.IsEmpty() {
		return c.list(ctx, q)
	}
	if c.cache.Complete() {
		return c.cache.Values(), nil
	}

	v, err, _ := c.group.Do(listAllKey, func() (any, error) {
		seq := c.cache.Begin()
		docs, err := c.store.List(ctx, c.schema.Collection, q)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]T, len(docs))
		for _, d := range c.decodeAll(docs) {
			byID[c.schema.ID(d)] = d
		}
		c.cache.Fill(seq, byID)
		return c.cache.Values(), nil
	})
	if err != nil {
		return nil, apperr.Wrap(c.schema.Collection+".fetch_all", apperr.KindRemoteUnavailable, err)
	}
	// Callers sharing the flight must not share the slice.
	return slices.Clone(v.([]T)), nil
}

// list runs a filtered query and writes every result into the cache.
func (c *Collection[T]) list(ctx context.Context, q remote.Query) ([]T, error) {
	seq := c.cache.Begin()
	docs, err := c.store.List(ctx, c.schema.Collection, q)
	if err != nil {
		return nil, apperr.Wrap(c.schema.Collection+".fetch_all", apperr.KindRemoteUnavailable, err)
	}
	out := c.decodeAll(docs)
	for _, v := range out {
		c.cache.Put(c.schema.ID(v), seq, v)
	}
	return out, nil
}

// decodeAll decodes docs, skipping malformed documents.
func (c *Collection[T]) decodeAll(docs []remote.Document) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := c.schema.Decode(d.ID, d.Fields)
		if err != nil {
			c.log.Warn("skipping malformed document", "id", d.ID, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// FetchOne returns the entity with the given id, from the cache when a fresh
// snapshot exists. Concurrent misses for the same id share one remote read.
func (c *Collection[T]) FetchOne(ctx context.Context, id string) (_ T, err error) {
	op := c.schema.Collection + ".fetch_one"
	ctx, done := c.inst.start(ctx, c.schema.Collection, "fetch_one")
	defer func() { done(err) }()

	var zero T
	if id == "" {
		return zero, apperr.Errorf(apperr.KindValidationFailed, op, "empty id")
	}
	if v, ok := c.cache.Get(id); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		seq := c.cache.Begin()
		doc, err := c.store.Get(ctx, c.schema.Collection, id)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				c.cache.Remove(id, seq)
			}
			return nil, err
		}
		out, err := c.schema.Decode(doc.ID, doc.Fields)
		if err != nil {
			return nil, apperr.New(apperr.KindRemoteUnavailable, op, err)
		}
		c.cache.Put(id, seq, out)
		return out, nil
	})
	if err != nil {
		return zero, apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
	}
	return v.(T), nil
}

// Create validates v, stores it, and caches the stored snapshot. An empty id
// lets the store assign one. The stored id is returned.
func (c *Collection[T]) Create(ctx context.Context, v T) (_ string, err error) {
	op := c.schema.Collection + ".create"
	ctx, done := c.inst.start(ctx, c.schema.Collection, "create")
	defer func() { done(err) }()

	if err := model.Validate(op, v); err != nil {
		return "", err
	}
	seq := c.cache.Begin()
	id, err := c.store.Create(ctx, c.schema.Collection, c.schema.ID(v), c.schema.Encode(v))
	if err != nil {
		return "", apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
	}
	c.cache.Put(id, seq, c.schema.WithID(v, id))
	return id, nil
}

// Update validates v and overwrites the existing document with its id.
func (c *Collection[T]) Update(ctx context.Context, v T) (err error) {
	op := c.schema.Collection + ".update"
	ctx, done := c.inst.start(ctx, c.schema.Collection, "update")
	defer func() { done(err) }()

	id := c.schema.ID(v)
	if id == "" {
		return apperr.Errorf(apperr.KindValidationFailed, op, "empty id")
	}
	if err := model.Validate(op, v); err != nil {
		return err
	}
	seq := c.cache.Begin()
	if err := c.store.Update(ctx, c.schema.Collection, id, c.schema.Encode(v)); err != nil {
		return apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
	}
	c.cache.Put(id, seq, v)
	return nil
}

// Delete removes the document and its cache entry. A document that is
// already gone is reported as KindNotFound and dropped from the cache.
func (c *Collection[T]) Delete(ctx context.Context, id string) (err error) {
	op := c.schema.Collection + ".delete"
	ctx, done := c.inst.start(ctx, c.schema.Collection, "delete")
	defer func() { done(err) }()

	if id == "" {
		return apperr.Errorf(apperr.KindValidationFailed, op, "empty id")
	}
	seq := c.cache.Begin()
	err = c.store.Delete(ctx, c.schema.Collection, id)
	if err == nil || apperr.Is(err, apperr.KindNotFound) {
		c.cache.Remove(id, seq)
	}
	return apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
}

// Cached returns the fresh cached snapshot for id without touching the store.
func (c *Collection[T]) Cached(id string) (T, bool) {
	return c.cache.Get(id)
}

// Invalidate marks one cached entity stale.
func (c *Collection[T]) Invalidate(id string) {
	c.cache.Invalidate(id)
}

// InvalidateAll marks every cached entity stale.
func (c *Collection[T]) InvalidateAll() {
	c.cache.InvalidateAll()
}
