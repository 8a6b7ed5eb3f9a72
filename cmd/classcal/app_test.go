package main

import (
	"errors"
	"flag"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/Freeeeeet/class_scheduler/internal/apperrors"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
)

func TestExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", apperrors.NewValidation("bad"), 2},
		{"malformed rule", apperrors.NewMalformedRule(errors.New("x"), "rule"), 2},
		{"not found", fmt.Errorf("load: %w", apperrors.NewNotFound("class 1 not found")), 3},
		{"conflict", apperrors.NewConflict("taken"), 4},
		{"past cutover", apperrors.NewPastCutover("yesterday"), 4},
		{"internal", errors.New("db down"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitError(tt.err)
			var exit cli.ExitCoder
			require.True(t, errors.As(err, &exit))
			assert.Equal(t, tt.code, exit.ExitCode())
		})
	}

	assert.NoError(t, exitError(nil))
}

func windowContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("timeline", flag.ContinueOnError)
	set.String("from", "", "")
	set.String("to", "", "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestWindow(t *testing.T) {
	classToday := func() (recurrence.Date, error) { return recurrence.NewDate(2023, 12, 31), nil }

	from, to, err := window(windowContext(t), classToday)
	require.NoError(t, err)
	assert.Equal(t, recurrence.NewDate(2023, 12, 31), from)
	assert.Equal(t, recurrence.NewDate(2024, 1, 27), to)

	called := false
	from, to, err = window(windowContext(t, "--from", "2024-02-01", "--to", "2024-02-10"), func() (recurrence.Date, error) {
		called = true
		return recurrence.Date{}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, recurrence.NewDate(2024, 2, 1), from)
	assert.Equal(t, recurrence.NewDate(2024, 2, 10), to)

	_, _, err = window(windowContext(t), func() (recurrence.Date, error) {
		return recurrence.Date{}, apperrors.NewNotFound("class 9 not found")
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, _, err = window(windowContext(t, "--from", "tomorrow"), classToday)
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())
}
