package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
)

var migrateUp = withRuntime(func(ctx context.Context, _ *cli.Context, r *appEnv) error {
	if err := r.db.Migrator.Run(ctx); err != nil {
		return err
	}
	version, err := r.db.Migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Database at version %d\n", version)
	return nil
})

var migrateStatus = withRuntime(func(ctx context.Context, _ *cli.Context, r *appEnv) error {
	statuses, err := r.db.Migrator.Status(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%05d  %-8s  %-19s  %s\n", st.Source.Version, st.State, applied, st.Source.Path)
	}
	return nil
})
