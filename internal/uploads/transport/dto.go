// Package transport defines the request and response shapes of the
// uploads API.
package transport

import (
	"time"
)

// IntakeRequest carries the multipart form fields submitted alongside
// the photo part. NoStory and GeoTag are pointers so an omitted field
// can default to true.
type IntakeRequest struct {
	Title            string     `form:"title" validate:"omitempty,max=255"`
	Description      string     `form:"description" validate:"omitempty,max=4000"`
	AlbumID          string     `form:"albumId" validate:"omitempty,max=64"`
	NoStory          *bool      `form:"noStory"`
	GeoTag           *bool      `form:"geoTag"`
	TakenAt          *time.Time `form:"takenAt" time_format:"2006-01-02T15:04:05Z07:00"`
	TakenAtPrecision int        `form:"takenAtPrecision" validate:"omitempty,min=1,max=5"`
	Latitude         *float64   `form:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64   `form:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// ListRequest selects a page of upload history.
type ListRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}
