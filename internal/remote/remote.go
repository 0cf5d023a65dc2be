// Package remote defines the document store boundary consumed by the sync
// repository. Implementations live in the subpackages: [firestore] talks to
// Cloud Firestore, [memstore] keeps documents in process.
//
// Every implementation reports failures as *apperr.Error: a missing document
// is apperr.KindNotFound, transport and backend failures are
// apperr.KindRemoteUnavailable.
package remote

import "context"

// Document is a stored document: an opaque id plus its fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Cond is a single field condition.
type Cond struct {
	Field string
	Value any
}

// Query selects documents of one collection. Equal conditions are ANDed.
// Prefix, when set, restricts a string field to values starting with
// Prefix.Value. An empty Query selects every document.
type Query struct {
	Equal  []Cond
	Prefix *Cond
}

// Where returns a query with a single equality condition.
func Where(field string, value any) Query {
	return Query{Equal: []Cond{{Field: field, Value: value}}}
}

// And adds an equality condition.
func (q Query) And(field string, value any) Query {
	eq := make([]Cond, 0, len(q.Equal)+1)
	eq = append(eq, q.Equal...)
	q.Equal = append(eq, Cond{Field: field, Value: value})
	return q
}

// WithPrefix returns q restricted to field values starting with prefix.
func (q Query) WithPrefix(field, prefix string) Query {
	q.Prefix = &Cond{Field: field, Value: prefix}
	return q
}

// IsEmpty reports whether q selects the whole collection.
func (q Query) IsEmpty() bool {
	return len(q.Equal) == 0 && q.Prefix == nil
}

// Store is a document-oriented remote database.
type Store interface {
	// Get returns one document. Missing documents yield KindNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// List returns the documents matching q.
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create stores a new document. An empty id asks the store to assign
	// one. The stored id is returned.
	Create(ctx context.Context, collection, id string, fields map[string]any) (string, error)
	// Update overwrites the given fields of an existing document. Missing
	// documents yield KindNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Missing documents yield KindNotFound.
	Delete(ctx context.Context, collection, id string) error
}
