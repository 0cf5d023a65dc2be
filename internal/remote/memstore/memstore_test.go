package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/remote"
)

func TestCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, "favorites", "", map[string]any{"user_id": "u1", "location_id": "l1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.Get(ctx, "favorites", id)
	require.NoError(t, err)
	require.Equal(t, "u1", doc.Fields["user_id"])

	// Mutating the returned map must not touch the stored document.
	doc.Fields["user_id"] = "mutated"
	again, _ := s.Get(ctx, "favorites", id)
	require.Equal(t, "u1", again.Fields["user_id"])

	require.NoError(t, s.Update(ctx, "favorites", id, map[string]any{"user_id": "u2"}))
	doc, _ = s.Get(ctx, "favorites", id)
	require.Equal(t, "u2", doc.Fields["user_id"])
	require.Equal(t, "l1", doc.Fields["location_id"], "update keeps other fields")

	require.NoError(t, s.Delete(ctx, "favorites", id))
	_, err = s.Get(ctx, "favorites", id)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMissingDocuments(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.ErrorIs(t, s.Update(ctx, "users", "nope", map[string]any{"a": 1}), apperr.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "users", "nope"), apperr.ErrNotFound)
}

func TestCreate_ExplicitIDConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, "users", "uid-1", map[string]any{"name": "Ana"})
	require.NoError(t, err)
	require.Equal(t, "uid-1", id)

	_, err = s.Create(ctx, "users", "uid-1", map[string]any{"name": "Other"})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestList_Queries(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed("favorites",
		remote.Document{ID: "f1", Fields: map[string]any{"user_id": "u1", "location_id": "l1"}},
		remote.Document{ID: "f2", Fields: map[string]any{"user_id": "u1", "location_id": "l2"}},
		remote.Document{ID: "f3", Fields: map[string]any{"user_id": "u2", "location_id": "l1"}},
	)
	s.Seed("locations",
		remote.Document{ID: "a", Fields: map[string]any{"name": "Castle"}},
		remote.Document{ID: "b", Fields: map[string]any{"name": "Cathedral"}},
		remote.Document{ID: "c", Fields: map[string]any{"name": "Bridge"}},
	)

	tests := []struct {
		name       string
		collection string
		q          remote.Query
		want       []string
	}{
		{"all", "favorites", remote.Query{}, []string{"f1", "f2", "f3"}},
		{"by user", "favorites", remote.Where("user_id", "u1"), []string{"f1", "f2"}},
		{"pair", "favorites", remote.Where("user_id", "u2").And("location_id", "l1"), []string{"f3"}},
		{"no match", "favorites", remote.Where("user_id", "u9"), []string{}},
		{"prefix", "locations", remote.Query{}.WithPrefix("name", "Ca"), []string{"a", "b"}},
		{"prefix no match", "locations", remote.Query{}.WithPrefix("name", "Zoo"), []string{}},
		{"unknown collection", "nothing", remote.Query{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.List(ctx, tt.collection, tt.q)
			require.NoError(t, err)
			ids := make([]string, 0, len(docs))
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Get(ctx, "users", "x")
	require.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
}
