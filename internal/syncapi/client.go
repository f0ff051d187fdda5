// Package syncapi implements the client for the remote detection sync
// endpoints: pull reconciliation, multipart upload, soft-delete exchange
// and note merge.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
	"github.com/bedjamahdi/scanpest-go/internal/httpclient"
	"github.com/bedjamahdi/scanpest-go/internal/logging"
	"github.com/bedjamahdi/scanpest-go/internal/session"
)

// Package-level logger specific to the sync API client
var (
	serviceLogger *slog.Logger
	closeLogger   func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "syncapi.log")

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "syncapi", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize syncapi file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		closeLogger = func() error { return nil }
	}
}

// Client talks to the remote sync endpoints on behalf of one session.
type Client struct {
	httpClient *httpclient.Client
	session    *session.Session
	baseURL    string
	debug      bool
}

// New creates a sync API client for the server configured in settings.
func New(httpClient *httpclient.Client, sess *session.Session, settings *conf.Settings) *Client {
	serviceLogger.Info("Creating new sync API client", "server_url", settings.Server.URL)
	return &Client{
		httpClient: httpClient,
		session:    sess,
		baseURL:    strings.TrimRight(settings.Server.URL, "/"),
		debug:      settings.Debug,
	}
}

// Close releases the client's idle connections and its log file.
func (c *Client) Close() {
	c.httpClient.Close()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Failed to close syncapi log file: %v", err)
		}
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// handleNetworkError handles network errors and returns a more specific error message.
func handleNetworkError(err error, endpoint string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		serviceLogger.Warn("Network request timed out", "endpoint", endpoint, "error", err)
		return errors.Newf("request timed out: %v", err).
			Category(errors.CategoryNetwork).
			Context("endpoint", endpoint).
			Build()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			serviceLogger.Error("DNS resolution failed", "url", urlErr.URL, "error", err)
			return errors.Newf("DNS resolution failed: %v", err).
				Category(errors.CategoryNetwork).
				Context("endpoint", endpoint).
				Build()
		}
	}
	serviceLogger.Error("Network error occurred", "endpoint", endpoint, "error", err)
	return errors.New(err).
		Category(errors.CategoryNetwork).
		Context("endpoint", endpoint).
		Build()
}

// statusError maps a non-2xx response to an error carrying the status
// and a bounded slice of the body for diagnostics.
func statusError(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	serviceLogger.Error("Sync endpoint returned error status",
		"endpoint", endpoint,
		"status_code", resp.StatusCode,
		"body", string(body))
	return errors.Newf("sync endpoint %s returned status %d", endpoint, resp.StatusCode).
		Category(errors.CategoryHTTP).
		Context("endpoint", endpoint).
		Context("status_code", resp.StatusCode).
		Build()
}

// postJSON sends a JSON body with the session's auth header and decodes
// the response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	target := c.endpoint(path)

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryValidation).
			Context("endpoint", target).
			Build()
	}

	if c.debug {
		serviceLogger.Debug("Sending sync request", "endpoint", target, "payload", string(payload))
	}

	auth, err := c.session.Authorization()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return handleNetworkError(err, target)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, target)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		serviceLogger.Error("Failed to decode sync response", "endpoint", target, "error", err)
		return errors.New(err).
			Category(errors.CategoryHTTP).
			Context("endpoint", target).
			Build()
	}
	return nil
}

// FetchDetections reconciles the device's serverId set against the
// server. It returns records missing locally plus the serverIds the
// server wants uploaded.
func (c *Client) FetchDetections(ctx context.Context, localServerIDs []string) (*FetchResponse, error) {
	if localServerIDs == nil {
		localServerIDs = []string{}
	}
	var out FetchResponse
	if err := c.postJSON(ctx, "detection/fetch/", &ServerIDsRequest{IDs: localServerIDs}, &out); err != nil {
		return nil, err
	}
	serviceLogger.Debug("Fetched detections from server",
		"to_store", len(out.DetectionsToSend),
		"needed_from_phone", len(out.NeededFromPhone))
	return &out, nil
}

// UploadDetections pushes detections with their image files as a single
// multipart request. The images map binds each detection's Image key to
// a local file path.
func (c *Client) UploadDetections(ctx context.Context, detections []UploadDetection, images map[string]string) error {
	target := c.endpoint("detection/upload/")

	auth, err := c.session.Authorization()
	if err != nil {
		return err
	}

	detectionsJSON, err := json.Marshal(detections)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryValidation).
			Context("endpoint", target).
			Build()
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormField("detections")
	if err != nil {
		return fmt.Errorf("creating detections form field: %w", err)
	}
	if _, err := part.Write(detectionsJSON); err != nil {
		return fmt.Errorf("writing detections form field: %w", err)
	}

	for key, path := range images {
		if err := appendImagePart(writer, key, path); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", auth)

	serviceLogger.Info("Uploading detections", "count", len(detections), "images", len(images))

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return handleNetworkError(err, target)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp, target)
	}
	return nil
}

func appendImagePart(writer *multipart.Writer, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("image_key", key).
			Context("path", path).
			Build()
	}
	defer func() {
		if err := file.Close(); err != nil {
			serviceLogger.Debug("Failed to close image file", "path", path, "error", err)
		}
	}()

	part, err := writer.CreateFormFile(key, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating image form part %s: %w", key, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copying image %s into form: %w", path, err)
	}
	return nil
}

// SoftDeleteDetections tells the server which records the device has
// flagged deleted.
func (c *Client) SoftDeleteDetections(ctx context.Context, serverIDs []string) error {
	if len(serverIDs) == 0 {
		return nil
	}
	serviceLogger.Info("Propagating soft deletes to server", "count", len(serverIDs))
	return c.postJSON(ctx, "detection/delete/batch/", &DeleteBatchRequest{ServerIDs: serverIDs}, nil)
}

// SoftDeleted returns the serverIds deleted on the server side.
func (c *Client) SoftDeleted(ctx context.Context) ([]string, error) {
	target := c.endpoint("detection/deleted/")

	auth, err := c.session.Authorization()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating deleted-ids request: %w", err)
	}
	req.Header.Set("Authorization", auth)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, handleNetworkError(err, target)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp, target)
	}

	var out SoftDeletedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryHTTP).
			Context("endpoint", target).
			Build()
	}
	return out.DeletedIDs, nil
}

// SyncNotes pushes local note state and returns the server's merged
// view. Entries in the response are authoritative.
func (c *Client) SyncNotes(ctx context.Context, updates []NoteUpdate) ([]NoteUpdate, error) {
	if updates == nil {
		updates = []NoteUpdate{}
	}
	var out NotesSyncResponse
	if err := c.postJSON(ctx, "detection/sync/notes/", &NotesSyncRequest{Detections: updates}, &out); err != nil {
		return nil, err
	}
	serviceLogger.Debug("Merged notes with server", "sent", len(updates), "received", len(out.Detections))
	return out.Detections, nil
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		serviceLogger.Debug("Failed to close response body", "error", err)
	}
}
