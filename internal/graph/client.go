// Package graph provides the HTTP client for the Facebook Graph API.
// All calls take the user's access token explicitly so a single client
// can serve every linked account.
package graph

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"
)

// Client is the HTTP client for the Graph API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appSecret  string
	log        *logger.Logger
}

// New creates a new Graph API client.
func New(cfg config.GraphConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.GetGraphTimeout()},
		baseURL:    strings.TrimRight(cfg.GetGraphBaseURL(), "/"),
		appSecret:  cfg.GetGraphAppSecret(),
		log:        log,
	}
}

// Me fetches the authenticated user's name and profile picture.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	params := url.Values{}
	params.Set("fields", "name,picture")

	var raw struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := c.getJSON(ctx, token, c.endpoint("/me", params), &raw); err != nil {
		return nil, err
	}

	return &User{ID: raw.ID, Name: raw.Name, PictureURL: raw.Picture.Data.URL}, nil
}

// Permissions fetches the permissions the user has granted to the app.
func (c *Client) Permissions(ctx context.Context, token string) (PermissionSet, error) {
	var raw struct {
		Data []struct {
			Permission string `json:"permission"`
			Status     string `json:"status"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, token, c.endpoint("/me/permissions", nil), &raw); err != nil {
		return nil, err
	}

	perms := make(PermissionSet, len(raw.Data))
	for _, item := range raw.Data {
		perms[item.Permission] = item.Status
	}
	return perms, nil
}

// Albums fetches all of the user's albums, following pagination.
func (c *Client) Albums(ctx context.Context, token string) ([]Album, error) {
	params := url.Values{}
	params.Set("fields", "id,can_upload,name")

	rows, err := getAll[apiAlbum](ctx, c, token, c.endpoint("/me/albums", params))
	if err != nil {
		return nil, err
	}

	albums := make([]Album, 0, len(rows))
	for _, row := range rows {
		albums = append(albums, Album{ID: row.ID, Name: row.Name, CanUpload: row.CanUpload})
	}
	return albums, nil
}

// Album fetches one album's details. When the album has a cover photo,
// a second request resolves the cover picture URL.
func (c *Client) Album(ctx context.Context, token, albumID string) (*AlbumDetail, error) {
	params := url.Values{}
	params.Set("fields", "cover_photo,description,location,name")

	var raw struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Location    string `json:"location"`
		CoverPhoto  *struct {
			ID string `json:"id"`
		} `json:"cover_photo"`
	}
	if err := c.getJSON(ctx, token, c.endpoint("/"+url.PathEscape(albumID), params), &raw); err != nil {
		return nil, err
	}

	detail := &AlbumDetail{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Location:    raw.Location,
	}

	if raw.CoverPhoto != nil && raw.CoverPhoto.ID != "" {
		coverURL, err := c.photoPicture(ctx, token, raw.CoverPhoto.ID)
		if err != nil {
			return nil, err
		}
		detail.CoverURL = coverURL
	}

	return detail, nil
}

func (c *Client) photoPicture(ctx context.Context, token, photoID string) (string, error) {
	params := url.Values{}
	params.Set("fields", "picture")

	var raw struct {
		Picture string `json:"picture"`
	}
	if err := c.getJSON(ctx, token, c.endpoint("/"+url.PathEscape(photoID), params), &raw); err != nil {
		return "", err
	}
	return raw.Picture, nil
}

// CreateAlbum creates a new album and returns its ID.
func (c *Client) CreateAlbum(ctx context.Context, token string, params CreateAlbumParams) (string, error) {
	form := url.Values{}
	form.Set("name", params.Name)
	if params.Description != "" {
		form.Set("message", params.Description)
	}
	if params.Location != "" {
		form.Set("location", params.Location)
	}
	privacy, err := json.Marshal(map[string]string{"value": params.Privacy})
	if err != nil {
		return "", fmt.Errorf("encode privacy: %w", err)
	}
	form.Set("privacy", string(privacy))

	var raw struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, token, c.endpoint("/me/albums", nil), form, &raw); err != nil {
		return "", err
	}
	return raw.ID, nil
}

// SearchPlaces searches for places around a point, following pagination.
// Distance is in meters.
func (c *Client) SearchPlaces(ctx context.Context, token, query string, lat, lon float64, distanceMeters int) ([]Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "place")
	params.Set("center", formatCenter(lat, lon))
	params.Set("distance", strconv.Itoa(distanceMeters))
	params.Set("fields", "category,id,location,name")

	return getAll[Place](ctx, c, token, c.endpoint("/search", params))
}

// UploadPhoto posts a photo to an album and returns the new photo's ID.
// Use album ID "me" to post to the default album.
func (c *Client) UploadPhoto(ctx context.Context, token, albumID string, photo io.Reader, params UploadPhotoParams) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("photo", "source")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return "", fmt.Errorf("copy photo data: %w", err)
	}

	fields := map[string]string{
		"no_story": strconv.FormatBool(params.NoStory),
		"caption":  params.Caption,
	}
	if params.BackdatedTime != nil {
		fields["backdated_time"] = params.BackdatedTime.Format(time.RFC3339)
		fields["backdated_time_granularity"] = params.BackdatedGranularity
	}
	if params.PlaceID != "" {
		fields["place"] = params.PlaceID
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.endpoint("/"+url.PathEscape(albumID)+"/photos", nil)

	var raw struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, token, http.MethodPost, endpoint, &body, writer.FormDataContentType(), &raw); err != nil {
		return "", err
	}
	return raw.ID, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	if len(params) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + params.Encode()
}

// withProof appends the appsecret_proof parameter when an app secret is
// configured. Paginated "next" URLs from the API already carry one.
func (c *Client) withProof(rawURL, token string) string {
	if c.appSecret == "" || strings.Contains(rawURL, "appsecret_proof=") {
		return rawURL
	}

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(token))
	proof := hex.EncodeToString(mac.Sum(nil))

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "appsecret_proof=" + proof
}

func (c *Client) getJSON(ctx context.Context, token, rawURL string, out interface{}) error {
	return c.doJSON(ctx, token, http.MethodGet, rawURL, nil, "", out)
}

func (c *Client) postForm(ctx context.Context, token, rawURL string, form url.Values, out interface{}) error {
	body := strings.NewReader(form.Encode())
	return c.doJSON(ctx, token, http.MethodPost, rawURL, body, "application/x-www-form-urlencoded", out)
}

func (c *Client) doJSON(ctx context.Context, token, method, rawURL string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.withProof(rawURL, token), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := float64(time.Since(start).Milliseconds())

	endpoint := endpointPath(rawURL)
	if err != nil {
		c.log.Error("graph request failed", "error", err, "method", method, "endpoint", endpoint)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	c.log.GraphRequest(method, endpoint, resp.StatusCode, latency)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Error("graph decode failed", "error", err, "endpoint", endpoint)
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var envelope struct {
		Error *Error `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = resp.StatusCode
		return envelope.Error
	}
	return &Error{
		Message:    fmt.Sprintf("upstream error: status %d", resp.StatusCode),
		HTTPStatus: resp.StatusCode,
	}
}

// paging is the cursor block the API appends to list responses.
type paging struct {
	Next string `json:"next"`
}

type page[T any] struct {
	Data   []T     `json:"data"`
	Paging *paging `json:"paging"`
}

// getAll collects every record from a paginated endpoint. An empty data
// array with a next cursor still advances, which the API produces when
// records were deleted between pages.
func getAll[T any](ctx context.Context, c *Client, token, rawURL string) ([]T, error) {
	out := make([]T, 0, 16)
	next := rawURL
	for next != "" {
		var current page[T]
		if err := c.getJSON(ctx, token, next, &current); err != nil {
			return nil, err
		}
		out = append(out, current.Data...)
		if current.Paging == nil || current.Paging.Next == "" {
			break
		}
		next = current.Paging.Next
	}
	return out, nil
}

func formatCenter(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

func endpointPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Path
}

// apiAlbum is the raw album entry from the albums list endpoint.
type apiAlbum struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CanUpload bool   `json:"can_upload"`
}
