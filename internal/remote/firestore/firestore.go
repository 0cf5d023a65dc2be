// Package firestore implements [remote.Store] on Cloud Firestore.
//
// Equality conditions become "==" filters. A prefix condition becomes the
// range [prefix, prefix+"\uf8ff"], which Firestore serves from the
// single-field index. When FIRESTORE_EMULATOR_HOST is set the client library
// connects to the emulator instead of production.
package firestore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/remote"
)

// prefixEnd is the highest code point in the Basic Multilingual Plane's
// private use area, the conventional upper bound for prefix range queries.
const prefixEnd = "\uf8ff"

// Config selects the Firestore project and credentials.
type Config struct {
	ProjectID string
	// CredentialsFile is a service account or authorized user JSON file.
	// Empty means Application Default Credentials.
	CredentialsFile string
}

// Store is a Firestore-backed [remote.Store].
type Store struct {
	client *firestore.Client
}

// Open creates a Firestore client for cfg.ProjectID.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client for %q: %w", cfg.ProjectID, err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return remote.Document{}, mapError(collection+".get", err)
	}
	return remote.Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

func (s *Store) List(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	fq := s.client.Collection(collection).Query
	for _, c := range q.Equal {
		fq = fq.Where(c.Field, "==", c.Value)
	}
	if q.Prefix != nil {
		prefix, _ := q.Prefix.Value.(string)
		fq = fq.Where(q.Prefix.Field, ">=", prefix).
			Where(q.Prefix.Field, "<=", prefix+prefixEnd)
	}

	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(collection+".list", err)
	}
	docs := make([]remote.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, remote.Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	coll := s.client.Collection(collection)
	if id == "" {
		ref, _, err := coll.Add(ctx, fields)
		if err != nil {
			return "", mapError(collection+".create", err)
		}
		return ref.ID, nil
	}
	if _, err := coll.Doc(id).Create(ctx, fields); err != nil {
		return "", mapError(collection+".create", err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	paths := make([]string, 0, len(fields))
	for k := range fields {
		paths = append(paths, k)
	}
	sort.Strings(paths)

	updates := make([]firestore.Update, 0, len(paths))
	for _, p := range paths {
		updates = append(updates, firestore.Update{Path: p, Value: fields[p]})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapError(collection+".update", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		return mapError(collection+".delete", err)
	}
	return nil
}

// mapError classifies a Firestore error by its gRPC status code.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return apperr.New(apperr.KindNotFound, op, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return apperr.New(apperr.KindUnauthenticated, op, err)
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition, codes.OutOfRange:
		return apperr.New(apperr.KindValidationFailed, op, err)
	default:
		return apperr.New(apperr.KindRemoteUnavailable, op, err)
	}
}

var _ remote.Store = (*Store)(nil)
