package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/Freeeeeet/class_scheduler/internal/app"
	"github.com/Freeeeeet/class_scheduler/internal/export"
	"github.com/Freeeeeet/class_scheduler/internal/formatting"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/timeline"
)

var (
	timelineFlags = []cli.Flag{
		cli.StringFlag{Name: "from", Usage: "first date, YYYY-MM-DD (default: today)"},
		cli.StringFlag{Name: "to", Usage: "last date, YYYY-MM-DD (default: four weeks from --from)"},
		cli.Int64Flag{Name: "series, s", Usage: "show only this series"},
		cli.BoolFlag{Name: "active", Usage: "hide cancelled occurrences"},
	}
	nextFlags = []cli.Flag{
		cli.StringFlag{Name: "after", Usage: "RFC 3339 timestamp (default: now)"},
	}
	changesFlags = []cli.Flag{
		cli.IntFlag{Name: "limit, n", Value: 20, Usage: "number of entries"},
	}
	exportFlags = []cli.Flag{
		cli.StringFlag{Name: "out, o", Usage: "write to a file instead of stdout"},
		cli.StringFlag{Name: "dir", Usage: "export every class into this directory (default: FEED_DIR)"},
	}
)

// window читает --from/--to; без --from окно начинается сегодня в зоне класса
func window(c *cli.Context, today func() (recurrence.Date, error)) (recurrence.Date, recurrence.Date, error) {
	var from recurrence.Date
	if raw := c.String("from"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			return from, from, usageError("--from must be a YYYY-MM-DD date")
		}
		from = d
	} else {
		d, err := today()
		if err != nil {
			return from, from, err
		}
		from = d
	}
	to := from.AddDays(27)
	if raw := c.String("to"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			return from, from, usageError("--to must be a YYYY-MM-DD date")
		}
		to = d
	}
	return from, to, nil
}

var printTimeline = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	classID, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}
	seriesID := c.Int64("series")
	from, to, err := window(c, func() (recurrence.Date, error) {
		if seriesID > 0 {
			return r.services.Timeline.SeriesToday(ctx, seriesID)
		}
		return r.services.Timeline.Today(ctx, classID)
	})
	if err != nil {
		return err
	}

	var (
		tl   timeline.Timeline
		errs []timeline.SeriesError
	)
	if seriesID > 0 {
		tl, err = r.services.Timeline.SeriesTimeline(ctx, seriesID, from, to)
	} else {
		var ct timeline.ClassTimeline
		ct, err = r.services.Timeline.ClassTimeline(ctx, classID, from, to)
		tl, errs = ct.Occurrences, ct.Errors
	}
	if err != nil {
		return err
	}
	if c.Bool("active") {
		tl = tl.Active()
	}

	fmt.Printf("📅 %s - %s\n\n", formatting.FormatDate(from), formatting.FormatDate(to))
	fmt.Println(formatting.FormatTimeline(tl))
	printSeriesErrors(errs)
	return nil
})

var printNext = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	classID, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}
	var after time.Time
	if raw := c.String("after"); raw != "" {
		if after, err = time.Parse(time.RFC3339, raw); err != nil {
			return usageError("--after must be an RFC 3339 timestamp")
		}
	}

	occ, errs, err := r.services.Timeline.NextOccurrence(ctx, classID, after)
	if err != nil {
		return err
	}
	if occ == nil {
		fmt.Println("Предстоящих занятий нет")
	} else {
		fmt.Println(formatting.FormatOccurrence(*occ))
	}
	printSeriesErrors(errs)
	return nil
})

var printChanges = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	classID, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}

	entries, err := r.services.Timeline.ChangeLog(ctx, classID, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s", formatting.FormatDateTime(e.CreatedAt), e.FieldName)
		if e.SeriesID != nil {
			line += fmt.Sprintf("  series #%d", *e.SeriesID)
		}
		if e.OldValue != nil {
			line += fmt.Sprintf("  %q", *e.OldValue)
		}
		if e.NewValue != nil {
			line += fmt.Sprintf(" -> %q", *e.NewValue)
		}
		if e.ActorID != nil {
			line += fmt.Sprintf("  by %d", *e.ActorID)
		}
		fmt.Println(line)
	}
	return nil
})

var exportCalendar = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	if c.NArg() == 0 {
		dir := c.String("dir")
		if dir == "" {
			dir = r.cfg.FeedDir
		}
		if dir == "" {
			return usageError("CLASS_ID or --dir (or FEED_DIR) is required")
		}

		scheduler := app.NewScheduler(r.services.Timeline, afero.NewOsFs(), dir, r.cfg.FeedCron, r.clock, r.logger)
		published, err := scheduler.PublishFeeds(ctx)
		fmt.Printf("📤 Опубликовано фидов: %d в %s\n", published, dir)
		return err
	}

	classID, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}
	class, _, inputs, err := r.services.Timeline.ClassInputs(ctx, classID)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	skipped, err := export.WriteClassCalendar(out, class, inputs, r.clock.Now())
	if err != nil {
		return err
	}
	printSeriesErrors(skipped)
	return nil
})

func printSeriesErrors(errs []timeline.SeriesError) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "⚠️  series #%d skipped: %v\n", e.SeriesID, e.Err)
	}
}
