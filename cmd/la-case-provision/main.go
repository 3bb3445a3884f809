package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mmdatafocus/lacase_backend/bootstrap"
	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/provisioning"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	routesFlag := flag.String("routes", "", "Optional: comma separated route ids (default: every configured route)")
	localLock := flag.Bool("local-lock", false, "Use an in-process lock instead of Redis")
	dbAttempts := flag.Int("db-attempts", 5, "Database connect attempts before giving up")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before provisioning")
	dryRun := flag.Bool("dry-run", false, "Print the window and document URLs without provisioning")
	printReport := flag.Bool("json", false, "Print the run report as JSON")
	flag.Parse()

	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}
	routes, err := pickRoutes(settings.Routes, *routesFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *dryRun {
		w := provisioning.ComputeWindow(provisioning.SystemClock{}.Now(), provisioning.Cutoff{
			Hour: settings.CutoffHour, Minute: settings.CutoffMinute, Location: settings.Location,
		})
		fetcher := provisioning.NewFetcher(settings.DocumentBaseURL, settings.OutputDir, nil)
		fmt.Printf("window %s (cutoff crossed: %t)\n", w.String(), w.CutoffCrossed)
		for _, r := range routes {
			fmt.Printf("%d\t%s\t%s\n", r.RouteId, r.DisplayName, fetcher.URL(r.RouteId, w))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.ConnectDatabaseWithRetry(*dbAttempts); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Error(err)
		os.Exit(1)
	}
	if sqlDB, err := config.GetDB().DB(); err == nil {
		defer sqlDB.Close()
	}
	if !*localLock {
		if err := config.ConnectRedisWithRetry(*dbAttempts); err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Error(err)
			os.Exit(1)
		}
		defer config.GetRedisDB().Close()
	}
	if *migrate {
		if err := models.MigrateTable(config.GetDB()); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error(err)
			os.Exit(1)
		}
	}

	app, err := bootstrap.Build(ctx, settings, bootstrap.Options{LocalLock: *localLock})
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "bootstrap"}).Error(err)
		os.Exit(1)
	}
	defer app.Close()

	runCtx := utils.SetTriggeredByInContext(ctx, models.RunTriggeredCLI)
	report, err := app.Orchestrator.Run(runCtx, routes)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "run"}).Error(err)
		os.Exit(1)
	}

	if *printReport {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		for _, rr := range report.Routes {
			line := fmt.Sprintf("%d\t%s\t%s", rr.Route.RouteId, rr.Route.DisplayName, rr.Outcome.Kind)
			if rr.Outcome.Err != nil {
				line += fmt.Sprintf("\t%s: %v", rr.Outcome.Stage, rr.Outcome.Err)
			}
			fmt.Println(line)
		}
	}

	if report.Status() == models.RunStatusFailed {
		os.Exit(1)
	}
}

func pickRoutes(configured []config.Route, raw string) ([]config.Route, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return configured, nil
	}
	byId := make(map[int]config.Route, len(configured))
	for _, r := range configured {
		byId[r.RouteId] = r
	}
	var out []config.Route
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("--routes: %q is not a route id", part)
		}
		r, ok := byId[id]
		if !ok {
			return nil, fmt.Errorf("--routes: route %d is not configured", id)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, config.ErrNoRoutes
	}
	return out, nil
}
