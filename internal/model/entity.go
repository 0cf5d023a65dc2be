// Package model defines the entity types shared by the repository, the cache,
// and the remote store adapters, together with their document encoding and
// validation rules.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Collection names in the remote document store.
const (
	CollectionUsers      = "users"
	CollectionLocations  = "locations"
	CollectionFavorites  = "favorites"
	CollectionComments   = "comments"
	CollectionCategories = "location_category"
)

// User is the profile document of an account. ID equals the identity id
// issued by the auth provider and never changes.
type User struct {
	ID                string    `doc:"-"`
	Name              string    `doc:"name" validate:"required"`
	Email             string    `doc:"email" validate:"required,email"`
	ProfilePictureURL string    `doc:"profile_picture_url" validate:"omitempty,url"`
	CreatedAt         time.Time `doc:"created_at"`
}

// Location is a point of interest. Localized text comes in a default and an
// English variant. Locations are read-only for the app.
type Location struct {
	ID            string  `doc:"-"`
	Name          string  `doc:"name" validate:"required"`
	NameEn        string  `doc:"name_en"`
	Description   string  `doc:"description"`
	DescriptionEn string  `doc:"description_en"`
	Address       string  `doc:"address"`
	Latitude      float64 `doc:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64 `doc:"longitude" validate:"gte=-180,lte=180"`
	CategoryID    string  `doc:"category_id"`
	ImageURL      string  `doc:"image_url"`
	Country       string  `doc:"country"`
	CountryEn     string  `doc:"country_en"`
}

// LocalizedName returns the English name when lang is "en" and one exists,
// otherwise the default name.
func (l Location) LocalizedName(lang string) string {
	if strings.EqualFold(lang, "en") && l.NameEn != "" {
		return l.NameEn
	}
	return l.Name
}

// MatchesName reports whether query occurs, case-insensitively, in either
// localized name.
func (l Location) MatchesName(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(l.Name), q) ||
		strings.Contains(strings.ToLower(l.NameEn), q)
}

// ContentHash returns a deterministic SHA-256 hex digest of all fields except
// the ID. The cache refresher uses it to count changed locations.
func (l Location) ContentHash() string {
	h := sha256.New()
	for _, s := range []string{
		l.Name, l.NameEn, l.Description, l.DescriptionEn, l.Address,
		l.CategoryID, l.ImageURL, l.Country, l.CountryEn,
	} {
		h.Write([]byte(s))
		h.Write([]byte("|"))
	}
	_, _ = fmt.Fprintf(h, "%g|%g", l.Latitude, l.Longitude)
	return hex.EncodeToString(h.Sum(nil))
}

// Favorite links a user to a location. At most one Favorite exists per
// (UserID, LocationID) pair; favorites are created and deleted, never updated.
type Favorite struct {
	ID         string    `doc:"-"`
	UserID     string    `doc:"user_id" validate:"required"`
	LocationID string    `doc:"location_id" validate:"required"`
	CreatedAt  time.Time `doc:"created_at"`
}

// Comment is a user's note on a location. Comments are never edited.
type Comment struct {
	ID         string    `doc:"-"`
	UserID     string    `doc:"user_id" validate:"required"`
	LocationID string    `doc:"location_id" validate:"required"`
	Text       string    `doc:"text" validate:"required,max=2000"`
	CreatedAt  time.Time `doc:"created_at"`
}

// LocationCategory is read-only reference data.
type LocationCategory struct {
	ID          string `doc:"-"`
	Description string `doc:"description"`
}

// LoginRecord is one row of the on-device login ledger.
type LoginRecord struct {
	ID        int64
	Timestamp time.Time
}
