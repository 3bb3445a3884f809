package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/lacase_backend/bootstrap"
	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/handlers"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/provisioning"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := config.ConnectDatabaseWithRetry(0); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err)
	}
	localLock := config.EnvBool("LA_LOCAL_LOCK", false)
	if !localLock {
		if err := config.ConnectRedisWithRetry(0); err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Fatal(err)
		}
		defer config.GetRedisDB().Close()
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.EnvBool("SKIP_MIGRATIONS", false) {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	app, err := bootstrap.Build(sigCtx, settings, bootstrap.Options{LocalLock: localLock})
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "bootstrap"}).Fatal(err)
	}
	defer app.Close()

	r := gin.New()
	r.Use(handlers.CorrelationMiddleware())
	r.Use(handlers.LocaleMiddleware())

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "Accept-Language", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")

	r.Use(cors.New(corsConfig))
	r.Use(handlers.RequestLogger(logger))
	r.Use(gin.Recovery())

	handlers.Register(r, app.Store, app.Orchestrator, settings.Routes)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	if settings.ProvisionInterval > 0 {
		go runPeriodically(sigCtx, app.Orchestrator, settings.Routes, settings.ProvisionInterval, logger)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// runPeriodically provisions once at startup and then every interval until ctx ends.
func runPeriodically(ctx context.Context, orch *provisioning.Orchestrator, routes []config.Route, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runCtx := utils.SetTriggeredByInContext(ctx, models.RunTriggeredSystem)
		if report, err := orch.Run(runCtx, routes); err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Error(err)
		} else if report.Status() != models.RunStatusSuccess {
			logger.WithFields(logrus.Fields{
				"field":          "scheduler",
				"correlation_id": report.CorrelationId,
				"status":         report.Status(),
			}).Warn("scheduled provisioning run did not fully succeed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
