package imagefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/httpclient"
)

func setupFetcher(t *testing.T, serverURL string) *Fetcher {
	t.Helper()

	settings := &conf.Settings{}
	settings.Server.URL = serverURL
	settings.Media.Path = filepath.Join(t.TempDir(), "media")

	client := httpclient.New(nil)
	t.Cleanup(client.Close)

	fetcher, err := New(client, settings)
	require.NoError(t, err)
	return fetcher
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMaterialize_DownloadsToMediaDir(t *testing.T) {
	payload := []byte("fake-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media/detections/42.png", r.URL.Path)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fetcher := setupFetcher(t, srv.URL)

	path, err := fetcher.Materialize(testContext(t), srv.URL+"/media/detections/42.png")
	require.NoError(t, err)

	assert.Equal(t, fetcher.MediaDir(), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".png"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMaterialize_ResolvesRelativeReference(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	fetcher := setupFetcher(t, srv.URL)

	_, err := fetcher.Materialize(testContext(t), "/media/detections/7.png")
	require.NoError(t, err)
	assert.Equal(t, "/media/detections/7.png", requested)
}

func TestMaterialize_UniqueNamesPerDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	fetcher := setupFetcher(t, srv.URL)

	first, err := fetcher.Materialize(testContext(t), "/a.png")
	require.NoError(t, err)
	second, err := fetcher.Materialize(testContext(t), "/a.png")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestMaterialize_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := setupFetcher(t, srv.URL)

	_, err := fetcher.Materialize(testContext(t), "/missing.png")
	require.Error(t, err)

	entries, readErr := os.ReadDir(fetcher.MediaDir())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
