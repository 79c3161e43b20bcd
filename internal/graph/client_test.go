package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"photobridge_backend/platform/logger"
)

type testGraphConfig struct {
	baseURL   string
	appSecret string
}

func (c testGraphConfig) GetGraphBaseURL() string        { return c.baseURL }
func (c testGraphConfig) GetGraphAppSecret() string      { return c.appSecret }
func (c testGraphConfig) GetGraphTimeout() time.Duration { return 5 * time.Second }

func newTestClient(serverURL, appSecret string) *Client {
	return New(testGraphConfig{baseURL: serverURL, appSecret: appSecret}, logger.New("development"))
}

func TestMe_ExtractsProfileAndPicture(t *testing.T) {
	var gotAuth, gotFields, gotProof string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFields = r.URL.Query().Get("fields")
		gotProof = r.URL.Query().Get("appsecret_proof")
		fmt.Fprint(w, `{"id":"42","name":"Jim Easterbrook","picture":{"data":{"url":"https://cdn.example.com/p.jpg"}}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "app-secret")
	user, err := client.Me(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if user.ID != "42" || user.Name != "Jim Easterbrook" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PictureURL != "https://cdn.example.com/p.jpg" {
		t.Fatalf("expected nested picture url, got %q", user.PictureURL)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
	if gotFields != "name,picture" {
		t.Fatalf("expected fields=name,picture, got %q", gotFields)
	}
	if gotProof == "" {
		t.Fatal("expected appsecret_proof param to be present")
	}
}

func TestAlbums_FollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprintf(w, `{"data":[{"id":"a1","name":"Holiday","can_upload":true}],"paging":{"next":"%s/me/albums?page=2"}}`, server.URL)
		case "2":
			// Empty data with a next cursor still advances a page.
			fmt.Fprintf(w, `{"data":[],"paging":{"next":"%s/me/albums?page=3"}}`, server.URL)
		case "3":
			fmt.Fprint(w, `{"data":[{"id":"a2","name":"Work","can_upload":false}],"paging":{}}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	albums, err := client.Albums(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Albums returned error: %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("expected 2 albums across pages, got %d", len(albums))
	}
	if albums[0].ID != "a1" || !albums[0].CanUpload {
		t.Fatalf("unexpected first album: %+v", albums[0])
	}
	if albums[1].ID != "a2" || albums[1].CanUpload {
		t.Fatalf("unexpected second album: %+v", albums[1])
	}
}

func TestAlbums_EmptyResponseStops(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	albums, err := client.Albums(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Albums returned error: %v", err)
	}
	if len(albums) != 0 {
		t.Fatalf("expected no albums, got %d", len(albums))
	}
	if calls != 1 {
		t.Fatalf("expected a single request, got %d", calls)
	}
}

func TestSearchPlaces_SendsCenterDistanceAndFields(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{
			"q":        r.URL.Query().Get("q"),
			"type":     r.URL.Query().Get("type"),
			"center":   r.URL.Query().Get("center"),
			"distance": r.URL.Query().Get("distance"),
			"fields":   r.URL.Query().Get("fields"),
		}
		fmt.Fprint(w, `{"data":[{"id":"p1","name":"Amsterdam","category":"City","location":{"city":"Amsterdam","latitude":52.37,"longitude":4.89}}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	places, err := client.SearchPlaces(context.Background(), "tok", "", 52.37, 4.89, 1000)
	if err != nil {
		t.Fatalf("SearchPlaces returned error: %v", err)
	}
	if got["type"] != "place" {
		t.Fatalf("expected type=place, got %q", got["type"])
	}
	if got["center"] != "52.37,4.89" {
		t.Fatalf("expected center=52.37,4.89, got %q", got["center"])
	}
	if got["distance"] != "1000" {
		t.Fatalf("expected distance=1000, got %q", got["distance"])
	}
	if got["fields"] != "category,id,location,name" {
		t.Fatalf("expected place fields, got %q", got["fields"])
	}
	if len(places) != 1 {
		t.Fatalf("expected 1 place, got %d", len(places))
	}
	if !places[0].Location.HasCoordinates() {
		t.Fatal("expected place location to carry coordinates")
	}
}

func TestErrorMapping_OAuthException(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"fbtrace_id":"abc"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.Me(context.Background(), "expired")
	if err == nil {
		t.Fatal("expected an error for 401 response")
	}

	graphErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *graph.Error, got %T", err)
	}
	if !graphErr.IsAuth() {
		t.Fatalf("expected auth error classification for code 190, got %+v", graphErr)
	}
	if graphErr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected HTTP status 401 on error, got %d", graphErr.HTTPStatus)
	}
	if graphErr.Temporary() {
		t.Fatal("auth errors must not be classified as temporary")
	}
}

func TestErrorMapping_RateLimitIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"Application request limit reached","type":"OAuthException","code":4}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.Albums(context.Background(), "tok")
	graphErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *graph.Error, got %T", err)
	}
	if !graphErr.IsRateLimited() || !graphErr.Temporary() {
		t.Fatalf("expected retryable rate limit error, got %+v", graphErr)
	}
}

func TestCreateAlbum_SendsPrivacyJSON(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"name":     r.PostFormValue("name"),
			"message":  r.PostFormValue("message"),
			"location": r.PostFormValue("location"),
			"privacy":  r.PostFormValue("privacy"),
		}
		fmt.Fprint(w, `{"id":"album-9"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	id, err := client.CreateAlbum(context.Background(), "tok", CreateAlbumParams{
		Name:        "Trip",
		Description: "Summer trip",
		Location:    "Lisbon",
		Privacy:     PrivacySelf,
	})
	if err != nil {
		t.Fatalf("CreateAlbum returned error: %v", err)
	}
	if id != "album-9" {
		t.Fatalf("expected album id album-9, got %q", id)
	}
	if form["privacy"] != `{"value":"SELF"}` {
		t.Fatalf("expected privacy object, got %q", form["privacy"])
	}
	if form["message"] != "Summer trip" || form["location"] != "Lisbon" {
		t.Fatalf("unexpected form fields: %+v", form)
	}
}

func TestUploadPhoto_MultipartFields(t *testing.T) {
	var (
		fileName string
		fileData string
		fields   map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo part missing: %v", err)
			return
		}
		defer file.Close()
		fileName = header.Filename
		data := make([]byte, header.Size)
		file.Read(data)
		fileData = string(data)
		fields = map[string]string{
			"no_story":                   r.FormValue("no_story"),
			"caption":                    r.FormValue("caption"),
			"backdated_time":             r.FormValue("backdated_time"),
			"backdated_time_granularity": r.FormValue("backdated_time_granularity"),
			"place":                      r.FormValue("place"),
		}
		fmt.Fprint(w, `{"id":"photo-77","post_id":"42_77"}`)
	}))
	defer server.Close()

	taken := time.Date(2016, 5, 4, 13, 30, 0, 0, time.UTC)
	client := newTestClient(server.URL, "")
	photoID, err := client.UploadPhoto(context.Background(), "tok", "album-9",
		strings.NewReader("jpeg-bytes"), UploadPhotoParams{
			Caption:              "Title\n\nDescription",
			NoStory:              true,
			BackdatedTime:        &taken,
			BackdatedGranularity: "min",
			PlaceID:              "place-1",
		})
	if err != nil {
		t.Fatalf("UploadPhoto returned error: %v", err)
	}
	if photoID != "photo-77" {
		t.Fatalf("expected photo id photo-77, got %q", photoID)
	}
	if fileName != "source" {
		t.Fatalf("expected photo part filename source, got %q", fileName)
	}
	if fileData != "jpeg-bytes" {
		t.Fatalf("photo payload not forwarded, got %q", fileData)
	}
	if fields["no_story"] != "true" {
		t.Fatalf("expected no_story=true, got %q", fields["no_story"])
	}
	if fields["caption"] != "Title\n\nDescription" {
		t.Fatalf("unexpected caption %q", fields["caption"])
	}
	if fields["backdated_time"] != "2016-05-04T13:30:00Z" {
		t.Fatalf("unexpected backdated_time %q", fields["backdated_time"])
	}
	if fields["backdated_time_granularity"] != "min" {
		t.Fatalf("unexpected granularity %q", fields["backdated_time_granularity"])
	}
	if fields["place"] != "place-1" {
		t.Fatalf("unexpected place %q", fields["place"])
	}
}

func TestAlbum_ResolvesCoverPicture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/album-9"):
			fmt.Fprint(w, `{"id":"album-9","name":"Trip","description":"Summer","location":"Lisbon","cover_photo":{"id":"cover-3"}}`)
		case strings.HasPrefix(r.URL.Path, "/cover-3"):
			if got := r.URL.Query().Get("fields"); got != "picture" {
				t.Errorf("expected fields=picture for cover fetch, got %q", got)
			}
			fmt.Fprint(w, `{"picture":"https://cdn.example.com/cover.jpg","id":"cover-3"}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	detail, err := client.Album(context.Background(), "tok", "album-9")
	if err != nil {
		t.Fatalf("Album returned error: %v", err)
	}
	if detail.CoverURL != "https://cdn.example.com/cover.jpg" {
		t.Fatalf("expected cover url resolved, got %q", detail.CoverURL)
	}
	if detail.Name != "Trip" || detail.Location != "Lisbon" {
		t.Fatalf("unexpected album detail: %+v", detail)
	}
}

func TestPermissionSet_Granted(t *testing.T) {
	perms := PermissionSet{
		"user_photos":     "granted",
		"publish_actions": "declined",
	}

	if !perms.Granted(ScopeRead) {
		t.Fatal("expected read scope to be granted")
	}
	if perms.Granted(ScopeWrite) {
		t.Fatal("expected write scope to be denied while publish_actions is declined")
	}

	perms["publish_actions"] = "granted"
	if !perms.Granted(ScopeWrite) {
		t.Fatal("expected write scope once both permissions are granted")
	}
	if perms.Granted("user_photos,unknown_scope") {
		t.Fatal("expected missing scope to deny the level")
	}
}

func TestPermissions_MapsStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"permission": "user_photos", "status": "granted"},
				{"permission": "publish_actions", "status": "declined"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	perms, err := client.Permissions(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Permissions returned error: %v", err)
	}
	if perms["user_photos"] != "granted" || perms["publish_actions"] != "declined" {
		t.Fatalf("unexpected permission set: %+v", perms)
	}
}
