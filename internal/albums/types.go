package albums

import "photobridge_backend/internal/graph"

// CreateAlbumRequest is the payload for creating a new Facebook album.
// Privacy defaults to SELF when omitted.
type CreateAlbumRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Location    string `json:"location" validate:"omitempty,max=200"`
	Privacy     string `json:"privacy" validate:"omitempty,oneof=SELF ALL_FRIENDS FRIENDS_OF_FRIENDS NETWORKS_FRIENDS EVERYONE"`
}

// AlbumsResponse wraps the album list for the frontend picker.
type AlbumsResponse struct {
	Data []graph.Album `json:"data"`
}

// CreatedAlbumResponse returns the Graph ID of a freshly created album.
type CreatedAlbumResponse struct {
	ID string `json:"id"`
}
