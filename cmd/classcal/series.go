package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/Freeeeeet/class_scheduler/internal/formatting"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/service"
)

var (
	seriesCreateFlags = []cli.Flag{
		cli.Int64Flag{Name: "class, c", Usage: "class ID"},
		cli.StringFlag{Name: "rule, r", Usage: `recurrence rule, e.g. "DTSTART;TZID=Local:20240101T090000\nRRULE:FREQ=WEEKLY;BYDAY=MO"`},
		cli.IntFlag{Name: "duration, d", Value: 60, Usage: "occurrence length in minutes"},
		cli.StringFlag{Name: "room", Usage: "room of every occurrence"},
	}
	seriesSplitFlags = []cli.Flag{
		cli.StringFlag{Name: "rule, r", Usage: "rule of the new series"},
		cli.StringFlag{Name: "cutover", Usage: "first date (YYYY-MM-DD) of the new series"},
		cli.IntFlag{Name: "duration, d", Usage: "occurrence length in minutes (default: from the old series)"},
		cli.StringFlag{Name: "room", Usage: "room (default: from the old series)"},
		cli.BoolFlag{Name: "allow-past", Usage: "allow a cutover before today"},
	}
)

// ruleText разрешает в аргументе литеральные \n вместо переводов строк
func ruleText(c *cli.Context) (string, error) {
	text := strings.ReplaceAll(c.String("rule"), `\n`, "\n")
	if strings.TrimSpace(text) == "" {
		return "", usageError("--rule is required")
	}
	return text, nil
}

var seriesCreate = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	classID := c.Int64("class")
	if classID <= 0 {
		return usageError("--class is required")
	}
	text, err := ruleText(c)
	if err != nil {
		return err
	}

	rule, err := r.services.Series.ParseRule(ctx, classID, text)
	if err != nil {
		return err
	}
	series, err := r.services.Series.CreateSeries(ctx, classID, rule, c.Int("duration"), c.String("room"))
	if err != nil {
		return err
	}
	fmt.Println(formatting.FormatSeriesInfo(series))
	return nil
})

var seriesList = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	classID, err := argID(c, 0, "CLASS_ID")
	if err != nil {
		return err
	}

	list, err := r.services.Timeline.ListSeries(ctx, classID)
	if err != nil {
		return err
	}
	for _, s := range list {
		fmt.Println(formatting.FormatSeriesInfo(s))
	}
	return nil
})

var seriesSplit = withRuntime(func(ctx context.Context, c *cli.Context, r *appEnv) error {
	seriesID, err := argID(c, 0, "SERIES_ID")
	if err != nil {
		return err
	}
	text, err := ruleText(c)
	if err != nil {
		return err
	}
	cutover, err := recurrence.ParseDate(c.String("cutover"))
	if err != nil {
		return usageError("--cutover must be a YYYY-MM-DD date")
	}

	rule, err := r.services.Series.ParseSeriesRule(ctx, seriesID, text)
	if err != nil {
		return err
	}
	next, err := r.services.Series.SplitSeries(ctx, seriesID, service.SplitRequest{
		Rule:             rule,
		DurationMinutes:  c.Int("duration"),
		Room:             c.String("room"),
		Cutover:          cutover,
		AllowPastCutover: c.Bool("allow-past"),
	})
	if err != nil {
		return err
	}
	fmt.Println(formatting.FormatSeriesInfo(next))
	return nil
})
