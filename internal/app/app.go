// Package app wires the store, session, HTTP client and services into
// one runtime used by the CLI commands.
package app

import (
	"time"

	"github.com/bedjamahdi/scanpest-go/internal/conf"
	"github.com/bedjamahdi/scanpest-go/internal/datastore"
	"github.com/bedjamahdi/scanpest-go/internal/detection"
	"github.com/bedjamahdi/scanpest-go/internal/errors"
	"github.com/bedjamahdi/scanpest-go/internal/httpclient"
	"github.com/bedjamahdi/scanpest-go/internal/imagefetch"
	"github.com/bedjamahdi/scanpest-go/internal/session"
	"github.com/bedjamahdi/scanpest-go/internal/syncapi"
	"github.com/bedjamahdi/scanpest-go/internal/syncer"
)

// App holds the wired-up services for one run.
type App struct {
	Settings   *conf.Settings
	Store      datastore.Interface
	Session    *session.Session
	API        *syncapi.Client
	Fetcher    *imagefetch.Fetcher
	Syncer     *syncer.Service
	Detections *detection.Service

	httpClient *httpclient.Client
}

// New opens the store and builds the service graph. When token is
// non-empty the session starts authenticated for userID.
func New(settings *conf.Settings, userID int, token string) (*App, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database backend enabled in configuration").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	sess := session.New()
	if token != "" {
		sess.Set(userID, token)
	}

	clientCfg := httpclient.DefaultConfig()
	if settings.Server.Timeout > 0 {
		clientCfg.DefaultTimeout = time.Duration(settings.Server.Timeout) * time.Second
	}
	hc := httpclient.New(&clientCfg)

	fetcher, err := imagefetch.New(hc, settings)
	if err != nil {
		_ = store.Close()
		hc.Close()
		return nil, err
	}

	api := syncapi.New(hc, sess, settings)

	return &App{
		Settings:   settings,
		Store:      store,
		Session:    sess,
		API:        api,
		Fetcher:    fetcher,
		Syncer:     syncer.New(store, api, fetcher, sess, settings),
		Detections: detection.NewService(store, sess),
		httpClient: hc,
	}, nil
}

// Close releases the store, the HTTP connection pool and the service logs.
func (a *App) Close() error {
	a.Syncer.Close()
	a.API.Close()
	return a.Store.Close()
}
