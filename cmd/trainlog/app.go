package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/config"
	"trainlog/internal/fitnesssyncer"
	"trainlog/internal/ingest"
	"trainlog/internal/oauth"
	"trainlog/internal/storage"
	"trainlog/internal/strava"
	"trainlog/internal/weekly"
	"trainlog/internal/workbook"
)

const providerTimeout = 30 * time.Second

// app is the wired object graph shared by the commands. Provider fields
// stay nil when that provider has no client id configured.
type app struct {
	cfg    config.Config
	logger *log.Logger
	close  func() error

	book   *workbook.Book
	weekly *weekly.Aggregator
	// logLock is shared by every writer of the activity log.
	logLock sync.Mutex

	fsAuth    *oauth.Manager
	fsFetcher *fitnesssyncer.Fetcher
	fsSync    *ingest.Pipeline

	stravaAuth *oauth.Manager
	stravaSync *ingest.Pipeline
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	table, closeTable, err := openTable(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, close: closeTable}
	a.book = workbook.New(table, cfg.Location)
	a.book.Logger = logger.WithPrefix("workbook")
	a.weekly = &weekly.Aggregator{Book: a.book, Logger: logger.WithPrefix("weekly")}

	httpClient := &http.Client{Timeout: providerTimeout}
	normalizer := ingest.Normalizer{Zone2: cfg.Zone2, MAF: cfg.MAF, Location: cfg.Location}

	if cfg.FitnessSyncerClientID != "" {
		endpoint := fitnesssyncer.Endpoint
		if cfg.FitnessSyncerAuthURL != "" {
			endpoint.AuthURL = cfg.FitnessSyncerAuthURL
		}
		if cfg.FitnessSyncerTokenURL != "" {
			endpoint.TokenURL = cfg.FitnessSyncerTokenURL
		}
		fsLogger := logger.WithPrefix(fitnesssyncer.Provider)
		a.fsAuth = &oauth.Manager{
			Provider:     fitnesssyncer.Provider,
			Store:        a.book.TokenStore(workbook.RegionConfig),
			Endpoint:     endpoint,
			ClientID:     cfg.FitnessSyncerClientID,
			ClientSecret: cfg.FitnessSyncerClientSecret,
			RedirectURI:  cfg.FitnessSyncerRedirectURI,
			HTTPClient:   httpClient,
			Logger:       fsLogger,
		}
		a.fsFetcher = &fitnesssyncer.Fetcher{
			Client: &fitnesssyncer.Client{
				BaseURL:     cfg.FitnessSyncerBaseURL,
				TokenSource: a.fsAuth,
				HTTPClient:  httpClient,
				Logger:      fsLogger,
			},
			SourceID: cfg.FitnessSyncerSourceID,
			Sources:  a.book,
			Limit:    cfg.SyncLimit,
		}
		a.fsSync = &ingest.Pipeline{
			Provider:   fitnesssyncer.Provider,
			Fetcher:    a.fsFetcher,
			Book:       a.book,
			Normalizer: normalizer,
			Weekly:     a.weekly,
			Source:     "FitnessSyncer",
			LogLock:    &a.logLock,
			Logger:     fsLogger,
		}
	}

	if cfg.StravaClientID != "" {
		stravaLogger := logger.WithPrefix(strava.Provider)
		a.stravaAuth = &oauth.Manager{
			Provider:     strava.Provider,
			Store:        a.book.TokenStore(workbook.RegionStravaConfig),
			Endpoint:     strava.EndpointFor(cfg.StravaAuthBaseURL),
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			RedirectURI:  cfg.StravaRedirectURL,
			HTTPClient:   httpClient,
			Logger:       stravaLogger,
		}
		client := &strava.Client{
			BaseURL:     cfg.StravaBaseURL,
			TokenSource: a.stravaAuth,
			HTTPClient:  httpClient,
			Logger:      stravaLogger,
		}
		perPage := cfg.StravaSyncLimit
		a.stravaSync = &ingest.Pipeline{
			Provider: strava.Provider,
			Fetcher: ingest.FetcherFunc(func(ctx context.Context) ([]activity.Raw, error) {
				return client.RecentActivities(ctx, perPage)
			}),
			Book:       a.book,
			Normalizer: normalizer,
			Weekly:     a.weekly,
			Source:     strava.Source,
			LogLock:    &a.logLock,
			Logger:     stravaLogger,
		}
	}

	return a, nil
}

func (a *app) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// authorizer returns the token manager for a provider name.
func (a *app) authorizer(provider string) (*oauth.Manager, *workbook.ConfigTokenStore, error) {
	switch provider {
	case fitnesssyncer.Provider:
		if a.fsAuth == nil {
			return nil, nil, fmt.Errorf("FITNESSSYNCER_CLIENT_ID is not set")
		}
		return a.fsAuth, a.book.TokenStore(workbook.RegionConfig), nil
	case strava.Provider:
		if a.stravaAuth == nil {
			return nil, nil, fmt.Errorf("STRAVA_CLIENT_ID is not set")
		}
		return a.stravaAuth, a.book.TokenStore(workbook.RegionStravaConfig), nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func openTable(ctx context.Context, cfg config.Config) (storage.Table, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendSheets:
		table, err := storage.NewSheetsTable(ctx, cfg.GoogleSheetsID, storage.SheetsCredentials{
			File:        cfg.GoogleCredentialsFile,
			ClientEmail: cfg.GoogleClientEmail,
			PrivateKey:  cfg.GooglePrivateKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
		}
		return table, func() error { return nil }, nil
	default:
		table, err := storage.Open(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := table.InitSchema(ctx); err != nil {
			_ = table.Close()
			return nil, nil, fmt.Errorf("init schema: %w", err)
		}
		return table, table.Close, nil
	}
}
