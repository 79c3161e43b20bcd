// Package transport defines request and response DTOs for the accounts API.
package transport

// LinkAccountRequest carries the user-supplied Graph access token.
// Token acquisition (the OAuth dance) happens client-side; the backend
// only ever sees the resulting token.
type LinkAccountRequest struct {
	AccessToken string `json:"accessToken" validate:"required,min=20"`
}
