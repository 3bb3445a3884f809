// Package bootstrap wires the provisioning orchestrator from the process globals
// set up by the config package.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/formsdk"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/provisioning"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// LocalLock uses an in-process lock instead of Redis.
	LocalLock bool
}

// App holds what the cmd packages need after wiring.
type App struct {
	Settings     *config.Settings
	Store        *models.CaseStore
	Orchestrator *provisioning.Orchestrator
	closers      []func() error
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// Build expects config.GetDB (and config.GetRedisLock unless LocalLock) to be connected.
func Build(ctx context.Context, settings *config.Settings, opts Options) (*App, error) {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return nil, config.ErrDatabaseNotReady
	}
	app := &App{Settings: settings, Store: models.NewCaseStore(db, settings.Location)}

	backend, err := formsdk.NewClient(formsdk.ClientOptions{
		BaseURL:       settings.FormsAPIBaseURL,
		APIKey:        settings.FormsAPIKey,
		APIKeyHeader:  settings.FormsAPIKeyHdr,
		RatePerMinute: settings.FormsRatePerMin,
		Timeout:       settings.HTTPTimeout,
	})
	if err != nil {
		return nil, err
	}

	var locker provisioning.Locker
	if opts.LocalLock {
		locker = provisioning.NewLocalLocker()
	} else {
		rl := config.GetRedisLock()
		if rl == nil {
			return nil, fmt.Errorf("redis lock client is not connected")
		}
		locker = provisioning.NewRedisLocker(rl)
	}

	deps := provisioning.Deps{
		Store:   app.Store,
		Runs:    app.Store,
		Backend: backend,
		Locker:  locker,
		Logger:  logger,
		Fetcher: provisioning.NewFetcher(settings.DocumentBaseURL, settings.OutputDir, &http.Client{Timeout: settings.HTTPTimeout}),
	}

	if settings.ArchiveBucket != "" {
		gcs, err := utils.GetGCSClient(ctx)
		if err != nil {
			// Archiving is optional; run without it.
			config.LogError(logger, "bootstrap", "Build", "creating GCS client", settings.ArchiveBucket, err)
		} else {
			app.closers = append(app.closers, gcs.Close)
			deps.Archiver = provisioning.NewGCSArchiver(gcs, settings.ArchiveBucket)
		}
	}
	if settings.ReportTopic != "" {
		deps.Notifier = provisioning.NewPubSubNotifier(settings.ReportTopic)
	}

	orch, err := provisioning.New(settings, deps)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Orchestrator = orch

	logger.WithFields(logrus.Fields{
		"routes":       len(settings.Routes),
		"template_id":  settings.TemplateId,
		"local_lock":   opts.LocalLock,
		"archive":      deps.Archiver != nil,
		"report_topic": settings.ReportTopic,
	}).Info("provisioning wired")
	return app, nil
}
