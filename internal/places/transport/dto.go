// Package transport defines request and response DTOs for the places API.
package transport

import "photobridge_backend/internal/graph"

// ResolveCitiesRequest are the query parameters for city resolution.
// Pointers distinguish a missing parameter from a legitimate zero
// coordinate on the equator or prime meridian.
type ResolveCitiesRequest struct {
	Latitude  *float64 `form:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude *float64 `form:"longitude" binding:"required,gte=-180,lte=180"`
}

// CitiesResponse lists the resolved places, most relevant first.
type CitiesResponse struct {
	Data []graph.Place `json:"data"`
}

// NearestCityResponse wraps the closest city. City is null when nothing
// near the coordinate qualified.
type NearestCityResponse struct {
	City *graph.Place `json:"city"`
}
