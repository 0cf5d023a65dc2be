// Package memstore is an in-process [remote.Store] used as the test double
// for the Firestore adapter. Documents live only as long as the Store.
package memstore

import (
	"context"
	"maps"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/remote"
)

// Store keeps collections of documents in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// New returns an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]map[string]any)}
}

// Seed inserts documents into a collection, overwriting existing ids.
func (s *Store) Seed(collection string, docs ...remote.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	for _, d := range docs {
		coll[d.ID] = clone(d.Fields)
	}
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) collection(name string) map[string]map[string]any {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[name] = coll
	}
	return coll
}

func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return remote.Document{}, apperr.New(apperr.KindRemoteUnavailable, collection+".get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return remote.Document{}, apperr.Errorf(apperr.KindNotFound, collection+".get", "document %q", id)
	}
	return remote.Document{ID: id, Fields: maps.Clone(fields)}, nil
}

func (s *Store) List(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.KindRemoteUnavailable, collection+".list", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]remote.Document, 0)
	for id, fields := range s.collections[collection] {
		if matches(fields, q) {
			docs = append(docs, remote.Document{ID: id, Fields: maps.Clone(fields)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.New(apperr.KindRemoteUnavailable, collection+".create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := coll[id]; exists {
		return "", apperr.Errorf(apperr.KindValidationFailed, collection+".create", "document %q already exists", id)
	}
	coll[id] = clone(fields)
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.KindRemoteUnavailable, collection+".update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return apperr.Errorf(apperr.KindNotFound, collection+".update", "document %q", id)
	}
	maps.Copy(existing, fields)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.KindRemoteUnavailable, collection+".delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return apperr.Errorf(apperr.KindNotFound, collection+".delete", "document %q", id)
	}
	delete(s.collections[collection], id)
	return nil
}

func clone(fields map[string]any) map[string]any {
	if fields == nil {
		return make(map[string]any)
	}
	return maps.Clone(fields)
}

func matches(fields map[string]any, q remote.Query) bool {
	for _, c := range q.Equal {
		if !reflect.DeepEqual(fields[c.Field], c.Value) {
			return false
		}
	}
	if q.Prefix != nil {
		got, ok := fields[q.Prefix.Field].(string)
		want, _ := q.Prefix.Value.(string)
		if !ok || !strings.HasPrefix(got, want) {
			return false
		}
	}
	return true
}
