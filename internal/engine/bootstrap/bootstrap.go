// Copyright 2025 SitePulse Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/engine/router"
	"github.com/sitepulse/sitepulse/internal/engine/service"
	"github.com/sitepulse/sitepulse/internal/pkg/scheduler"
	"github.com/sitepulse/sitepulse/internal/pkg/trigger"
	"github.com/sitepulse/sitepulse/pkg/database"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/safe"
	"github.com/sitepulse/sitepulse/pkg/shutdown"
)

type App struct {
	HttpApp       *fiber.App
	MetricsServer *metrics.Server
	Logger        *log.Logger
	AppConf       *config.AppConfig
	DB            database.Manager
	Repos         *repo.Repositories
	Services      *service.Services
	Scheduler     *scheduler.Scheduler
	Trigger       *trigger.Scheduled
	ShutdownMgr   *shutdown.Manager
}

// InitAppFunc init app function type
type InitAppFunc func(configPath string) (*App, func(), error)

func NewApp(
	rt *router.Router,
	logger *log.Logger,
	metricsServer *metrics.Server,
	appConf *config.AppConfig,
	db database.Manager,
	repos *repo.Repositories,
	services *service.Services,
	shutdownMgr *shutdown.Manager,
) (*App, func(), error) {
	httpApp := rt.Router()

	sched := scheduler.New()
	scheduled := trigger.NewScheduled(services.Orchestrator, appConf.Triggers)

	app := &App{
		HttpApp:       httpApp,
		MetricsServer: metricsServer,
		Logger:        logger,
		AppConf:       appConf,
		DB:            db,
		Repos:         repos,
		Services:      services,
		Scheduler:     sched,
		Trigger:       scheduled,
		ShutdownMgr:   shutdownMgr,
	}

	cleanup := func() {
		// stop recurring jobs before anything they depend on
		log.Info("Stopping scheduled jobs...")
		sched.CancelAll()
		scheduled.Stop()

		// close notification channels
		services.Dispatcher.Close()

		// stop metrics server
		if metricsServer != nil {
			log.Info("Shutting down metrics server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.Errorw("Failed to stop metrics server", zap.Error(err))
			}
		}

		// close database last, jobs and channels may still flush writes
		if db != nil {
			log.Info("Closing database...")
			if err := db.Close(); err != nil {
				log.Errorw("Failed to close database", zap.Error(err))
			}
		}
	}

	return app, cleanup, nil
}

// Bootstrap init app, return App instance and cleanup function
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), *config.AppConfig, error) {
	// Wire build App (所有依赖都由 wire 自动注入)
	app, cleanup, err := initApp(configFile)
	if err != nil {
		return nil, nil, nil, err
	}

	appConf := app.AppConf

	// load persisted alert settings and register notification channels
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Services.Init(initCtx, appConf); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	registerJobs(app)

	return app, cleanup, appConf, nil
}

// registerJobs wires the recurring background work: run timeout sweeping and
// retention cleanup of old runs and webhook records.
func registerJobs(app *App) {
	app.Services.Orchestrator.StartTimeoutSweep(app.Scheduler)

	maint := app.AppConf.Maintenance
	if maint.IntervalHours > 0 && maint.RetentionDays > 0 {
		interval := time.Duration(maint.IntervalHours) * time.Hour
		retention := maint.RetentionDays
		app.Scheduler.Register("history_cleanup", interval, false, func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -retention)
			return app.Services.Orchestrator.CleanupHistory(ctx, cutoff)
		})
	}

	// Periodic snapshot refresh keeps the rolling windows current even when no
	// run completes for a while.
	if hrs := app.AppConf.Analytics.ReportIntervalHrs; hrs > 0 {
		app.Scheduler.Register("analytics_report", time.Duration(hrs)*time.Hour, false, func(ctx context.Context) error {
			_, err := app.Services.Analytics.UpdateAfterRun(ctx, nil)
			return err
		})
	}
}

// Run start app and wait for exit signal, then gracefully shutdown
func Run(app *App, cleanup func()) {
	appConf := app.AppConf

	// start metrics server
	if app.MetricsServer != nil {
		if err := app.MetricsServer.Start(); err != nil {
			log.Errorw("Metrics server failed: %v", err)
		}
	}

	// start scheduled pipeline triggers
	app.Trigger.Start()

	// set signal listener (graceful shutdown)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// start HTTP server (async)
	safe.Go(func() {
		addr := appConf.Http.Host + ":" + fmt.Sprintf("%d", appConf.Http.Port)
		log.Infow("HTTP listener started",
			"address", addr,
		)
		if err := app.HttpApp.Listen(addr); err != nil {
			log.Errorw("HTTP listener failed",
				"address", addr,
				zap.Error(err),
			)
		}
	})

	// wait for exit signal (either from OS signal or HTTP shutdown endpoint)
	select {
	case sig := <-quit:
		log.Infow("Received OS signal, shutting down gracefully...", "signal", sig)
		if app.ShutdownMgr != nil {
			app.ShutdownMgr.Shutdown()
		}
	case <-app.ShutdownMgr.Wait():
		log.Info("Received shutdown request, shutting down gracefully...")
	}

	// close HTTP server first so no request lands on stopping services
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error: %v", err)
	} else {
		log.Info("HTTP server shut down gracefully")
	}

	cleanup()

	log.Info("Server shutdown complete")
}
