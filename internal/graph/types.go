package graph

import (
	"strings"
	"time"
)

// Scope strings required for the two access levels. Facebook grants
// permissions individually, so a level is only usable when every scope
// in its comma-separated list has been granted.
const (
	ScopeRead  = "user_photos"
	ScopeWrite = "user_photos,publish_actions"
)

// Album privacy values accepted by the Graph API.
const (
	PrivacySelf             = "SELF"
	PrivacyAllFriends       = "ALL_FRIENDS"
	PrivacyFriendsOfFriends = "FRIENDS_OF_FRIENDS"
	PrivacyNetworksFriends  = "NETWORKS_FRIENDS"
	PrivacyEveryone         = "EVERYONE"
)

// User is the authenticated Facebook user's profile.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PictureURL string `json:"pictureUrl"`
}

// PermissionSet maps a permission name to its status ("granted" or "declined").
type PermissionSet map[string]string

// Granted reports whether every scope in the comma-separated list has
// been granted. Used with ScopeRead and ScopeWrite.
func (p PermissionSet) Granted(scopes string) bool {
	for _, scope := range strings.Split(scopes, ",") {
		if p[scope] != "granted" {
			return false
		}
	}
	return true
}

// Album is a summary entry from the user's album list.
type Album struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CanUpload bool   `json:"canUpload"`
}

// AlbumDetail is the full album record, including its cover picture URL
// when the album has a cover photo.
type AlbumDetail struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// CreateAlbumParams are the fields for creating a new album.
// Privacy must be one of the Privacy* constants.
type CreateAlbumParams struct {
	Name        string
	Description string
	Location    string
	Privacy     string
}

// Place is a place record from the Graph search API.
type Place struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Location *Location `json:"location,omitempty"`
}

// Location holds the address and coordinates of a place. Latitude and
// longitude are pointers because the API omits them for some records.
type Location struct {
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Street    string   `json:"street,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// UploadPhotoParams are the optional fields attached to a photo upload.
type UploadPhotoParams struct {
	Caption              string
	NoStory              bool
	BackdatedTime        *time.Time
	BackdatedGranularity string // one of "year", "month", "day", "hour", "min"
	PlaceID              string
}
