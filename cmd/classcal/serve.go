package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/app"
	"github.com/Freeeeeet/class_scheduler/internal/transport/httpapi"
)

var serve = withRuntime(func(ctx context.Context, _ *cli.Context, r *appEnv) error {
	r.logger.Info("Starting class scheduler",
		zap.String("environment", r.cfg.Environment),
		zap.String("db_driver", r.cfg.DBDriver),
		zap.String("http_addr", r.cfg.HTTPAddr),
	)

	if err := r.db.Migrator.Run(ctx); err != nil {
		return err
	}

	scheduler := app.NewScheduler(
		r.services.Timeline,
		afero.NewOsFs(),
		r.cfg.FeedDir,
		r.cfg.FeedCron,
		r.clock,
		r.logger,
	)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if r.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(r.services.Series, r.services.Timeline, r.clock, r.cfg.DefaultTimezone, r.logger)
	server := httpapi.NewServer(r.cfg.HTTPAddr, httpapi.NewRouter(handler, r.logger), r.logger)

	return server.Run(ctx)
})
