// Command vitrine serves the offline catalog: it keeps a local SQLite mirror
// of the catalog spreadsheet and its media, and exposes them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vitrine/api"
	"github.com/hazyhaar/vitrine/catalog"
	"github.com/hazyhaar/vitrine/config"
	"github.com/hazyhaar/vitrine/horosafe"
	"github.com/hazyhaar/vitrine/media"
	"github.com/hazyhaar/vitrine/media/httpsource"
	"github.com/hazyhaar/vitrine/media/objectsource"
	"github.com/hazyhaar/vitrine/sheets"
	"github.com/hazyhaar/vitrine/store"
	"github.com/hazyhaar/vitrine/watch"
)

func main() {
	configPath := flag.String("config", os.Getenv("VITRINE_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	lvl, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Store. Without it the process runs network-only.
	st, err := store.Open(ctx, cfg.DBPath, store.WithLogger(logger))
	offline := false
	if err != nil {
		if !errors.Is(err, store.ErrStoreUnavailable) {
			slog.Error("store", "error", err)
			os.Exit(1)
		}
		slog.Warn("store unavailable, running network-only", "path", cfg.DBPath, "error", err)
		st, offline = nil, true
	} else {
		defer st.Close()
	}

	validate := horosafe.ValidateURL
	if cfg.Media.AllowPrivate {
		validate = func(string) error { return nil }
	}

	// Catalog.
	client, err := sheets.New(sheets.Config{
		URLTemplate:  cfg.Sheets.URLTemplate,
		VersionRow:   cfg.Sheets.VersionRow,
		VersionCol:   cfg.Sheets.VersionCol,
		Timeout:      cfg.Sheets.Timeout,
		URLValidator: validate,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("sheets client", "error", err)
		os.Exit(1)
	}
	cache := catalog.NewCache(st, catalog.WithCacheLogger(logger))
	loader := catalog.NewLoader(client, sheets.HeaderMapper{}, cache,
		catalog.WithProductsRef(cfg.Sheets.ProductsSheet),
		catalog.WithFeatureRef(cfg.Sheets.FeaturesSheet),
		catalog.WithLoaderLogger(logger))

	// Media.
	router := media.NewRouter(httpsource.New(httpsource.Config{
		MaxBytes:     cfg.MediaMaxBytes(),
		URLValidator: validate,
	}))
	if cfg.S3.Endpoint != "" {
		objects, err := objectsource.New(objectsource.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Region:    cfg.S3.Region,
			MaxBytes:  cfg.MediaMaxBytes(),
		})
		if err != nil {
			slog.Error("object store", "error", err)
			os.Exit(1)
		}
		router.Handle(objectsource.Scheme, objects)
	}
	retries := cfg.Media.Retries
	if retries == 0 {
		retries = -1 // GuardConfig treats 0 as "default"
	}
	guarded := media.Guard(router, media.GuardConfig{Retries: retries, Logger: logger})
	tracker := media.NewTracker(st, media.WithTrackerLogger(logger))
	syncer := media.NewSyncer(guarded, tracker, media.Config{
		Concurrency: cfg.Media.Concurrency,
		BaseURL:     cfg.Media.BaseURL,
	}, logger)
	resolver := media.NewResolver(tracker, api.LocalPrefix, media.WithResolverLogger(logger))
	defer resolver.Close()

	// Version poller: refresh the catalog, then mirror its media.
	var watcher *watch.Watcher
	if cfg.Watch.Enabled {
		watcher = watch.New(watch.FromFetcher(client, cfg.Sheets.VersionSheet), watch.Options{
			Interval:  cfg.Watch.Interval,
			Debounce:  cfg.Watch.Debounce,
			Heartbeat: cfg.Watch.Heartbeat,
			Logger:    logger,
		})
		go watcher.OnChange(ctx, func(ctx context.Context, version string) error {
			res, err := loader.Load(ctx, cfg.Sheets.VersionSheet)
			if err != nil {
				return err
			}
			rep, err := syncer.Sync(ctx, res.Snapshot.Products, media.SyncOptions{Features: res.Snapshot.Features})
			if errors.Is(err, media.ErrSyncInProgress) {
				slog.Info("media sync already running", "version", version)
				return nil
			}
			if err != nil {
				return err
			}
			slog.Info("catalog refreshed", "version", version, "origin", res.Origin,
				"products", len(res.Snapshot.Products), "downloaded", rep.Downloaded, "skipped", rep.Skipped)
			return nil
		})
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: api.New(api.Deps{
			Loader:     loader,
			Cache:      cache,
			Syncer:     syncer,
			Tracker:    tracker,
			Resolver:   resolver,
			Watcher:    watcher,
			Sources:    guarded,
			VersionRef: cfg.Sheets.VersionSheet,
			Offline:    offline,
			Logger:     logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute, // streamed media syncs
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "network_only", offline)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
