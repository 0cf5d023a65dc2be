package model

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Schema describes how one entity kind maps onto a remote collection.
type Schema[T any] struct {
	// Collection is the remote collection name.
	Collection string
	// ID returns the entity's document id.
	ID func(T) string
	// WithID returns a copy of the entity carrying the given id.
	WithID func(T, string) T
	// Encode returns the document fields of the entity. The id is not a field.
	Encode func(T) map[string]any
}

// Decode builds an entity from a document id and its fields. Unknown fields
// are ignored and numbers are converted between integer and float kinds.
func (s Schema[T]) Decode(id string, fields map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "doc",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			unixMillisToTimeHook,
		),
	})
	if err != nil {
		return out, fmt.Errorf("building %s decoder: %w", s.Collection, err)
	}
	if err := dec.Decode(fields); err != nil {
		return out, fmt.Errorf("decoding %s/%s: %w", s.Collection, id, err)
	}
	return s.WithID(out, id), nil
}

// unixMillisToTimeHook accepts timestamps stored as Unix milliseconds.
func unixMillisToTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	}
	return data, nil
}

// Users maps User onto the users collection.
var Users = Schema[User]{
	Collection: CollectionUsers,
	ID:         func(u User) string { return u.ID },
	WithID:     func(u User, id string) User { u.ID = id; return u },
	Encode: func(u User) map[string]any {
		return map[string]any{
			"name":                u.Name,
			"email":               u.Email,
			"profile_picture_url": u.ProfilePictureURL,
			"created_at":          u.CreatedAt.UTC(),
		}
	},
}

// Locations maps Location onto the locations collection.
var Locations = Schema[Location]{
	Collection: CollectionLocations,
	ID:         func(l Location) string { return l.ID },
	WithID:     func(l Location, id string) Location { l.ID = id; return l },
	Encode: func(l Location) map[string]any {
		return map[string]any{
			"name":           l.Name,
			"name_en":        l.NameEn,
			"description":    l.Description,
			"description_en": l.DescriptionEn,
			"address":        l.Address,
			"latitude":       l.Latitude,
			"longitude":      l.Longitude,
			"category_id":    l.CategoryID,
			"image_url":      l.ImageURL,
			"country":        l.Country,
			"country_en":     l.CountryEn,
		}
	},
}

// Favorites maps Favorite onto the favorites collection.
var Favorites = Schema[Favorite]{
	Collection: CollectionFavorites,
	ID:         func(f Favorite) string { return f.ID },
	WithID:     func(f Favorite, id string) Favorite { f.ID = id; return f },
	Encode: func(f Favorite) map[string]any {
		return map[string]any{
			"user_id":     f.UserID,
			"location_id": f.LocationID,
			"created_at":  f.CreatedAt.UTC(),
		}
	},
}

// Comments maps Comment onto the comments collection.
var Comments = Schema[Comment]{
	Collection: CollectionComments,
	ID:         func(c Comment) string { return c.ID },
	WithID:     func(c Comment, id string) Comment { c.ID = id; return c },
	Encode: func(c Comment) map[string]any {
		return map[string]any{
			"user_id":     c.UserID,
			"location_id": c.LocationID,
			"text":        c.Text,
			"created_at":  c.CreatedAt.UTC(),
		}
	},
}

// Categories maps LocationCategory onto the location_category collection.
var Categories = Schema[LocationCategory]{
	Collection: CollectionCategories,
	ID:         func(c LocationCategory) string { return c.ID },
	WithID:     func(c LocationCategory, id string) LocationCategory { c.ID = id; return c },
	Encode: func(c LocationCategory) map[string]any {
		return map[string]any{"description": c.Description}
	},
}
