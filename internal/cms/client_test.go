package cms

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestAuthenticateExchangesClientCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authorize/access_token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Fatalf("expected client_credentials grant, got %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "sec" {
			t.Fatalf("credentials not forwarded: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok_123","token_type":"Bearer"}`))
	}))
	defer server.Close()

	token, err := Authenticate(context.Background(), server.URL, "cid", "sec", server.Client())
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if token != "tok_123" {
		t.Fatalf("expected tok_123, got %q", token)
	}
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	if _, err := Authenticate(context.Background(), server.URL, "cid", "sec", server.Client()); err == nil {
		t.Fatalf("expected error for empty access_token")
	}
}

func TestGetPlaylistSendsEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlist" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("playlistId") != "12" {
			t.Fatalf("expected playlistId=12, got %q", r.URL.Query().Get("playlistId"))
		}
		if r.URL.Query().Get("embed") != "widgets,regions" {
			t.Fatalf("expected embed=widgets,regions, got %q", r.URL.Query().Get("embed"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("expected bearer token header, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"playlistId":12,"name":"dash","widgets":[{"widgetId":3,"mediaIds":[8]}]}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", server.Client())
	playlists, err := client.GetPlaylist(context.Background(), 12)
	if err != nil {
		t.Fatalf("get playlist failed: %v", err)
	}
	if len(playlists) != 1 || len(playlists[0].Widgets) != 1 {
		t.Fatalf("unexpected playlist decode: %+v", playlists)
	}
	refs, ok := normalizeWidget(playlists[0].Widgets[0])
	if !ok || refs.widgetID != 3 || len(refs.mediaIDs) != 1 || refs.mediaIDs[0] != 8 {
		t.Fatalf("unexpected widget normalization: %+v", refs)
	}
}

func TestDeleteWidgetStatusHandling(t *testing.T) {
	cases := []struct {
		status int
		wantOK bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, true},
		{http.StatusAccepted, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/playlist/widget/44" {
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(tc.status)
		}))
		client := NewClient(server.URL, "tok", server.Client())
		err := client.DeleteWidget(context.Background(), 44)
		server.Close()

		if tc.wantOK && err != nil {
			t.Fatalf("status %d: expected success, got %v", tc.status, err)
		}
		if !tc.wantOK {
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != tc.status {
				t.Fatalf("status %d: expected HTTPError with that status, got %v", tc.status, err)
			}
		}
	}
}

func TestAssignMediaPostsBodyAndReturnsRawPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/playlist/library/assign/9" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"media":[5,6]}` {
			t.Fatalf("unexpected assign body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"id":9}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", server.Client())
	raw, err := client.AssignMedia(context.Background(), 9, []int{5, 6})
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if string(raw) != `{"success":true,"id":9}` {
		t.Fatalf("expected opaque payload passthrough, got %s", raw)
	}
}

func TestSearchLibraryForwardsParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("search") != "clip" {
			t.Fatalf("expected search=clip, got %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"media_id":"17","fileName":"clip.mp4"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", server.Client())
	items, err := client.SearchLibrary(context.Background(), "search", "clip")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	id, ok := items[0].ID()
	if !ok || id != 17 {
		t.Fatalf("expected media_id fallback to yield 17, got %d (%v)", id, ok)
	}
}

func TestUploadMediaSendsMultipartAndReadsMediaID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "promo.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("seed file failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/library" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart failed: %v", err)
		}
		if r.MultipartForm.Value["name"][0] != "_api_promo_20240101" {
			t.Fatalf("display name not forwarded: %v", r.MultipartForm.Value)
		}
		if r.MultipartForm.Value["type"][0] != "video" {
			t.Fatalf("module type not forwarded: %v", r.MultipartForm.Value)
		}
		if r.MultipartForm.Value["updateInLayout"][0] != "1" {
			t.Fatalf("updateInLayout not forwarded: %v", r.MultipartForm.Value)
		}
		if len(r.MultipartForm.File["files"]) != 1 {
			t.Fatalf("expected one files part, got %v", r.MultipartForm.File)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"mediaId":301,"name":"_api_promo_20240101"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", server.Client())
	mediaID, err := client.UploadMedia(context.Background(), path, "_api_promo_20240101", "video")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if mediaID != 301 {
		t.Fatalf("expected media id 301, got %d", mediaID)
	}
}

func TestUploadMediaSurfacesPerFileError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file failed: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"error":"unsupported format"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", server.Client())
	if _, err := client.UploadMedia(context.Background(), path, "n", "video"); err == nil {
		t.Fatalf("expected per-file upload error to surface")
	}
}
