package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/Freeeeeet/class_scheduler/internal/formatting"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

var (
	cancelFlags = []cli.Flag{
		cli.StringFlag{Name: "reason", Usage: "why the occurrence is cancelled"},
	}
	rescheduleFlags = []cli.Flag{
		cli.StringFlag{Name: "start", Usage: "new start, RFC 3339 (e.g. 2024-01-23T10:00:00-06:00)"},
		cli.StringFlag{Name: "end", Usage: "new end, RFC 3339"},
		cli.StringFlag{Name: "room", Usage: "new room (default: room of the series)"},
	}
)

// seriesDate читает SERIES_ID и SOURCE_DATE
func seriesDate(c *cli.Context) (int64, recurrence.Date, error) {
	seriesID, err := argID(c, 0, "SERIES_ID")
	if err != nil {
		return 0, recurrence.Date{}, err
	}
	d, err := recurrence.ParseDate(c.Args().Get(1))
	if err != nil {
		return 0, recurrence.Date{}, usageError("SOURCE_DATE must be a YYYY-MM-DD date")
	}
	return seriesID, d, nil
}

var cancelOccurrence = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	seriesID, d, err := seriesDate(c)
	if err != nil {
		return err
	}

	override, err := r.services.Series.Cancel(ctx, seriesID, d, c.String("reason"))
	if err != nil {
		return err
	}
	fmt.Printf("❌ Занятие %s отменено (override #%d)\n", formatting.FormatDateWithWeekday(d), override.ID)
	return nil
})

var rescheduleOccurrence = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	seriesID, d, err := seriesDate(c)
	if err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, c.String("start"))
	if err != nil {
		return usageError("--start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, c.String("end"))
	if err != nil {
		return usageError("--end must be an RFC 3339 timestamp")
	}

	override, err := r.services.Series.Reschedule(ctx, seriesID, d, start, end, c.String("room"))
	if err != nil {
		return err
	}
	fmt.Printf("🔁 Занятие %s перенесено на %s %s (override #%d)\n",
		formatting.FormatDateWithWeekday(d),
		formatting.FormatDateWithWeekday(recurrence.DateOf(start)),
		formatting.FormatTimeRange(start, end),
		override.ID,
	)
	return nil
})

var restoreOverride = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	id, err := argID(c, 0, "OVERRIDE_ID")
	if err != nil {
		return err
	}

	if err := r.services.Series.Restore(ctx, id); err != nil {
		return err
	}
	fmt.Printf("✅ Override #%d удалён, занятие возвращено к расписанию\n", id)
	return nil
})
