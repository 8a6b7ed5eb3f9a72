package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli"

	"github.com/Freeeeeet/class_scheduler/internal/formatting"
	"github.com/Freeeeeet/class_scheduler/internal/model"
)

var (
	classCreateFlags = []cli.Flag{
		cli.StringFlag{Name: "name, n", Usage: "class name"},
		cli.StringFlag{Name: "tz", Usage: "IANA timezone of the venue (default: DEFAULT_TIMEZONE)"},
	}
	classCloseFlags = []cli.Flag{
		cli.StringFlag{Name: "status, s", Value: string(model.ClassStatusCompleted), Usage: "completed or cancelled"},
	}
)

var classCreate = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	tz := c.String("tz")
	if tz == "" {
		tz = r.cfg.DefaultTimezone
	}

	class, err := r.services.Series.CreateClass(ctx, c.String("name"), tz)
	if err != nil {
		return err
	}
	fmt.Println(formatting.FormatClassInfo(class))
	return nil
})

var classList = withRuntime(func(ctx context.Context, _ *cli.Context, r *appEnv) error {
	classes, err := r.services.Timeline.ListClasses(ctx)
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		fmt.Println("Классов нет")
		return nil
	}
	for _, class := range classes {
		fmt.Println(formatting.FormatClassInfo(class))
		fmt.Println()
	}
	return nil
})

var classShow = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	id, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}

	class, err := r.services.Timeline.GetClass(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(formatting.FormatClassInfo(class))

	series, err := r.services.Timeline.ListSeries(ctx, id)
	if err != nil {
		return err
	}
	if len(series) > 0 {
		fmt.Println()
	}
	for _, s := range series {
		fmt.Println(formatting.FormatSeriesInfo(s))
	}
	return nil
})

var classClose = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	id, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}

	if err := r.services.Series.CloseClass(ctx, id, model.ClassStatus(c.String("status"))); err != nil {
		return err
	}

	class, err := r.services.Timeline.GetClass(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(formatting.FormatClassInfo(class))
	return nil
})

// argID читает положительный ID из позиционного аргумента
func argID(c *cli.Context, pos int, name string) (int64, error) {
	raw := c.Args().Get(pos)
	if raw == "" {
		return 0, usageError("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}
