package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/app"
	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/config"
	"github.com/Freeeeeet/class_scheduler/internal/service"
)

var version = "dev"

func Execute(args []string) error {
	cliApp := cli.App{
		Name:      "classcal",
		HelpName:  "classcal",
		Usage:     "class schedule: recurring series, cancellations, moves and splits",
		Version:   version,
		UsageText: "classcal <command> [arguments...]",
		Flags: []cli.Flag{
			cli.Int64Flag{
				Name:  "actor",
				Usage: "user ID recorded in the change log",
			},
		},
		Commands: []cli.Command{
			{
				Name:  "migrate",
				Usage: "manage database migrations",
				Subcommands: []cli.Command{
					{Name: "up", Usage: "apply pending migrations", Action: migrateUp},
					{Name: "status", Usage: "show migration status", Action: migrateStatus},
				},
			},
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the feed publisher",
				Action: serve,
			},
			{
				Name:  "class",
				Usage: "manage classes",
				Subcommands: []cli.Command{
					{Name: "create", Usage: "create a class", Action: classCreate, Flags: classCreateFlags},
					{Name: "list", Usage: "list classes", Action: classList},
					{Name: "show", Usage: "show a class", ArgsUsage: "CLASS_ID", Action: classShow},
					{Name: "close", Usage: "complete or cancel a class", ArgsUsage: "CLASS_ID", Action: classClose, Flags: classCloseFlags},
				},
			},
			{
				Name:  "series",
				Usage: "manage recurring series",
				Subcommands: []cli.Command{
					{Name: "create", Usage: "add a series to a class", Action: seriesCreate, Flags: seriesCreateFlags},
					{Name: "list", Usage: "list series of a class", ArgsUsage: "CLASS_ID", Action: seriesList},
					{Name: "split", Usage: "end a series before the cutover and start a new rule from it", ArgsUsage: "SERIES_ID", Action: seriesSplit, Flags: seriesSplitFlags},
				},
			},
			{
				Name:      "cancel",
				Usage:     "cancel one occurrence of a series",
				ArgsUsage: "SERIES_ID SOURCE_DATE",
				Action:    cancelOccurrence,
				Flags:     cancelFlags,
			},
			{
				Name:      "reschedule",
				Usage:     "move one occurrence of a series",
				ArgsUsage: "SERIES_ID SOURCE_DATE",
				Action:    rescheduleOccurrence,
				Flags:     rescheduleFlags,
			},
			{
				Name:      "restore",
				Usage:     "remove an override and return the occurrence to its rule",
				ArgsUsage: "OVERRIDE_ID",
				Action:    restoreOverride,
			},
			{
				Name:      "timeline",
				Usage:     "print the resolved timeline of a class",
				ArgsUsage: "CLASS_ID",
				Action:    printTimeline,
				Flags:     timelineFlags,
			},
			{
				Name:      "next",
				Usage:     "print the next occurrence of a class",
				ArgsUsage: "CLASS_ID",
				Action:    printNext,
				Flags:     nextFlags,
			},
			{
				Name:      "changes",
				Usage:     "print the change log of a class",
				ArgsUsage: "CLASS_ID",
				Action:    printChanges,
				Flags:     changesFlags,
			},
			{
				Name:      "export",
				Usage:     "export a class as iCalendar, or every class into a directory",
				ArgsUsage: "[CLASS_ID]",
				Action:    exportCalendar,
				Flags:     exportFlags,
			},
		},
	}

	return cliApp.Run(args)
}

// appEnv содержит всё, что нужно команде: конфиг, логгер, база и сервисы
type appEnv struct {
	cfg      *config.Config
	clock    service.Clock
	logger   *zap.Logger
	db       *app.Database
	services *app.Services
}

func setup(ctx context.Context) (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}

	db, err := app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	clock := service.SystemClock{}
	return &appEnv{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		db:       db,
		services: app.NewServices(db.Store, cfg, clock, logger),
	}, nil
}

func (r *appEnv) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close database", zap.Error(err))
	}
	_ = r.logger.Sync()
}

// withRuntime оборачивает действие команды: поднимает окружение, прокидывает актора
// и переводит ошибки приложения в коды выхода
func withRuntime(fn func(ctx context.Context, c *cli.Context, r *appEnv) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if actor := c.GlobalInt64("actor"); actor != 0 {
			ctx = service.WithActor(ctx, actor)
		}

		r, err := setup(ctx)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer r.Close()

		return exitError(fn(ctx, c, r))
	}
}

// exitError сопоставляет виду ошибки код выхода
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		return exit
	}

	code := 1
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindMalformedRule, apperrors.KindInvalidRule:
		code = 2
	case apperrors.KindNotFound:
		code = 3
	case apperrors.KindConflict, apperrors.KindPastCutover:
		code = 4
	}
	return cli.NewExitError(fmt.Sprintf("%s: %v", apperrors.KindOf(err), err), code)
}

func usageError(format string, args ...any) error {
	return cli.NewExitError(fmt.Sprintf(format, args...), 2)
}
