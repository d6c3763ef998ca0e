package main

import (
	"context"
	"fmt"

	"github.com/datallboy/addonsync/internal/app"
	"github.com/datallboy/addonsync/internal/browser/chrome"
	"github.com/datallboy/addonsync/internal/engine"
	"github.com/datallboy/addonsync/internal/extraction"
	"github.com/datallboy/addonsync/internal/infra/config"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/datallboy/addonsync/internal/navigation"
	"github.com/datallboy/addonsync/internal/platform"
	"github.com/datallboy/addonsync/internal/smartupdate"
	"github.com/datallboy/addonsync/internal/store"
)

// services is everything a command may need, torn down by close.
type services struct {
	app      *app.Context
	store    store.Store
	cache    *smartupdate.Cache
	session  *chrome.Session
	pipeline *engine.Pipeline
}

// bootstrap loads config, logging and the cache. The browser is only
// launched when withBrowser is set.
func bootstrap(ctx context.Context, withBrowser bool) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s := &services{app: app.NewContext(cfg, log)}

	s.store, err = store.Open(ctx, store.Options{
		Driver:      cfg.Cache.Driver,
		SQLitePath:  cfg.Cache.SQLitePath,
		PostgresDSN: cfg.Cache.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s.cache = smartupdate.New(s.store, cfg.Cache.BlobDir, log)
	if err := s.cache.Load(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to load smartupdate cache: %w", err)
	}
	s.app.Cache = s.cache

	if !withBrowser {
		return s, nil
	}

	execPath, err := platform.FindBrowser(cfg.Browser.ExecPath)
	if err != nil {
		s.close()
		return nil, err
	}

	s.session, err = chrome.New(ctx, chrome.Options{
		ExecPath:    execPath,
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		DownloadDir: cfg.Browser.DownloadDir,
	}, log)
	if err != nil {
		s.close()
		return nil, err
	}

	navOpts := navigation.DefaultOptions()
	navOpts.NavigationTimeout = cfg.Browser.NavigationTimeout
	navOpts.DownloadStartGrace = cfg.Browser.DownloadStartGrace
	broker := navigation.NewBroker(s.session, log, navOpts)

	s.pipeline = engine.NewPipeline(broker, s.cache, extraction.NewManager(log), log, engine.Options{
		DownloadDir:      cfg.Work.DownloadDir,
		UnzipDir:         cfg.Work.UnzipDir,
		TargetDir:        cfg.TargetDir,
		DurabilityMargin: cfg.Work.DurabilityMargin,
	})

	return s, nil
}

func (s *services) close() {
	if s.session != nil {
		s.session.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.app.Logger.Warn("Failed to close store: %v", err)
		}
	}
	_ = s.app.Logger.Sync()
}
