// Package imagefetch downloads remote detection images into local media
// storage so records can reference a stable on-disk path.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
	"github.com/bedjamahdi/scanpest-go/internal/httpclient"
	"github.com/bedjamahdi/scanpest-go/internal/logging"
)

// copyBufferSize matches the chunk size used when streaming image bodies
// to disk.
const copyBufferSize = 4096

// Fetcher materializes remote image references as files under the media
// directory.
type Fetcher struct {
	client   *httpclient.Client
	baseURL  *url.URL
	mediaDir string
	logger   *slog.Logger
}

// New creates a Fetcher writing into the media path from settings.
// Relative image references are resolved against the server URL.
func New(client *httpclient.Client, settings *conf.Settings) (*Fetcher, error) {
	base, err := url.Parse(settings.Server.URL)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("server_url", settings.Server.URL).
			Build()
	}

	mediaDir := conf.GetBasePath(settings.Media.Path)
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("media_dir", mediaDir).
			Build()
	}

	return &Fetcher{
		client:   client,
		baseURL:  base,
		mediaDir: mediaDir,
		logger:   logging.ForService("imagefetch"),
	}, nil
}

// MediaDir returns the directory downloaded images are written to.
func (f *Fetcher) MediaDir() string {
	return f.mediaDir
}

// Materialize downloads the image at source and returns the local file
// path. The file gets a fresh UUID name so repeated downloads of the
// same source never collide.
func (f *Fetcher) Materialize(ctx context.Context, source string) (string, error) {
	target, err := f.resolve(source)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Get(ctx, target)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryImageFetch).
			Context("url", target).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("Failed to close image response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("image download returned status %d", resp.StatusCode).
			Category(errors.CategoryImageFetch).
			Context("url", target).
			Context("status_code", resp.StatusCode).
			Build()
	}

	dest := filepath.Join(f.mediaDir, uuid.NewString()+".png")
	if err := writeFile(dest, resp.Body); err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("url", target).
			Context("path", dest).
			Build()
	}

	f.logger.Debug("Materialized image", "url", target, "path", dest)
	return dest, nil
}

// resolve turns a possibly relative image reference into an absolute URL.
func (f *Fetcher) resolve(source string) (string, error) {
	ref, err := url.Parse(source)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryValidation).
			Context("source", source).
			Build()
	}
	if ref.IsAbs() {
		return source, nil
	}
	return f.baseURL.ResolveReference(ref).String(), nil
}

func writeFile(dest string, body io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("writing image file: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("closing image file: %w", err)
	}
	return nil
}
