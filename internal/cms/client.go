package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout is the per-request timeout applied when no HTTP client is
// supplied. Requests are never retried; a failed call is reported to the
// caller as-is.
const DefaultTimeout = 10 * time.Second

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// API is the slice of the CMS surface consumed by the locator, the
// reconciler and the sync driver.
type API interface {
	GetPlaylists(ctx context.Context) ([]PlaylistSummary, error)
	GetPlaylist(ctx context.Context, playlistID int) ([]PlaylistRecord, error)
	DeleteWidget(ctx context.Context, widgetID int) error
	AssignMedia(ctx context.Context, playlistID int, mediaIDs []int) (json.RawMessage, error)
	SearchLibrary(ctx context.Context, param, value string) ([]LibraryItem, error)
	UploadMedia(ctx context.Context, path, displayName, moduleType string) (int, error)
}

// Client talks to a Xibo-compatible CMS API with an already-obtained bearer
// token. One client shares one underlying connection pool across all calls.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// Authenticate obtains a bearer token via the OAuth client-credentials grant.
func Authenticate(ctx context.Context, baseURL, clientID, clientSecret string, httpClient *http.Client) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/authorize/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newHTTPError(resp.StatusCode, payload)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return out.AccessToken, nil
}

func (c *Client) GetPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	var out []PlaylistSummary
	err := c.doJSON(ctx, http.MethodGet, "/playlist", nil, &out)
	return out, err
}

func (c *Client) GetPlaylist(ctx context.Context, playlistID int) ([]PlaylistRecord, error) {
	q := url.Values{}
	q.Set("playlistId", fmt.Sprintf("%d", playlistID))
	q.Set("embed", "widgets,regions")
	var out []PlaylistRecord
	err := c.doJSON(ctx, http.MethodGet, "/playlist?"+q.Encode(), nil, &out)
	return out, err
}

// DeleteWidget removes one widget. The CMS answers 200 or 204 on success;
// any other status is reported as an *HTTPError.
func (c *Client) DeleteWidget(ctx context.Context, widgetID int) error {
	status, payload, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/playlist/widget/%d", widgetID), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return newHTTPError(status, payload)
	}
	return nil
}

// AssignMedia assigns media ids to a playlist, creating widgets for them.
// The response shape is vendor-defined and passed through opaquely.
func (c *Client) AssignMedia(ctx context.Context, playlistID int, mediaIDs []int) (json.RawMessage, error) {
	body := map[string]any{"media": mediaIDs}
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/playlist/library/assign/%d", playlistID), body, &out)
	return out, err
}

func (c *Client) SearchLibrary(ctx context.Context, param, value string) ([]LibraryItem, error) {
	q := url.Values{}
	q.Set(param, value)
	var out []LibraryItem
	err := c.doJSON(ctx, http.MethodGet, "/library?"+q.Encode(), nil, &out)
	return out, err
}

// UploadMedia uploads a local file to the CMS library under displayName and
// returns the media id the CMS created for it.
func (c *Client) UploadMedia(ctx context.Context, path, displayName, moduleType string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return 0, err
	}
	if err := writer.WriteField("name", displayName); err != nil {
		return 0, err
	}
	if err := writer.WriteField("type", moduleType); err != nil {
		return 0, err
	}
	if err := writer.WriteField("updateInLayout", "1"); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/library", &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return 0, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, newHTTPError(resp.StatusCode, payload)
	}
	var out struct {
		Files []struct {
			MediaID any    `json:"mediaId"`
			Error   string `json:"error"`
		} `json:"files"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return 0, err
	}
	if len(out.Files) == 0 {
		return 0, fmt.Errorf("upload response contained no files")
	}
	if msg := strings.TrimSpace(out.Files[0].Error); msg != "" {
		return 0, fmt.Errorf("upload rejected: %s", msg)
	}
	mediaID, ok := coerceID(out.Files[0].MediaID)
	if !ok {
		return 0, fmt.Errorf("upload response missing mediaId")
	}
	return mediaID, nil
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	status, payload, err := c.do(ctx, method, requestPath, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return newHTTPError(status, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func (c *Client) do(ctx context.Context, method, requestPath string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return 0, nil, readErr
	}
	return resp.StatusCode, payload, nil
}

func newHTTPError(status int, payload []byte) *HTTPError {
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	message := strings.TrimSpace(errPayload.Message)
	if message == "" {
		message = strings.TrimSpace(errPayload.Error.Message)
	}
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	return &HTTPError{StatusCode: status, Code: errPayload.Code, Message: message}
}
