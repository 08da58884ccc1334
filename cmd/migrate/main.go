package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, opts options, runner *migrate.Runner) error
}

var commands = map[string]command{
	"create": {run: func(_ context.Context, opts options, _ *migrate.Runner) error {
		if opts.name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}},
	"validate": {run: func(_ context.Context, opts options, _ *migrate.Runner) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		return migrate.ValidateEmbedded()
	}},
	"up": {needsDB: true, run: func(ctx context.Context, _ options, r *migrate.Runner) error {
		return report(r.Up(ctx))
	}},
	"down": {needsDB: true, run: func(ctx context.Context, _ options, r *migrate.Runner) error {
		return report(r.Down(ctx))
	}},
	"version": {needsDB: true, run: func(ctx context.Context, opts options, r *migrate.Runner) error {
		if opts.version == "" {
			v, err := r.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}
		return report(r.To(ctx, opts.version))
	}},
	"status": {needsDB: true, run: func(ctx context.Context, _ options, r *migrate.Runner) error {
		rows, err := r.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, row := range rows {
			state, at := "pending", "-"
			if row.Applied {
				state, at = "applied", row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Version, state, at, row.Path)
		}
		return tw.Flush()
	}},
}

func report(results []migrate.Applied, err error) error {
	for _, res := range results {
		fmt.Printf("%-5s %d %s (%s)\n", res.Direction, res.Version, res.Path, res.Duration)
	}
	if err == nil && len(results) == 0 {
		fmt.Println("nothing to do")
	}
	return err
}

func main() {
	_ = godotenv.Load()

	var opts options
	name := flag.String("cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "on-disk migrations directory (create, validate)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version; empty prints the current version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *name)

	cmd, ok := commands[*name]
	if !ok {
		fail(ctx, logg, "migrate.unknown_command", fmt.Errorf("unknown -cmd %q", *name))
	}

	var runner *migrate.Runner
	if cmd.needsDB {
		cfg, err := config.Load()
		if err != nil {
			fail(ctx, logg, "migrate.config_failed", err)
		}
		logg = logger.New(logger.Options{
			ServiceName: "migrate",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		})
		ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *name, "env": cfg.App.Env})

		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			fail(ctx, logg, "migrate.db_connect_failed", err)
		}
		defer client.Close()

		sqlDB, err := client.DB().DB()
		if err != nil {
			fail(ctx, logg, "migrate.db_connect_failed", err)
		}
		if runner, err = migrate.NewRunner(sqlDB); err != nil {
			fail(ctx, logg, "migrate.init_failed", err)
		}
	}

	if err := cmd.run(ctx, opts, runner); err != nil {
		fail(ctx, logg, "migrate.failed", err)
	}
	logg.Info(ctx, "migrate.done")
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
