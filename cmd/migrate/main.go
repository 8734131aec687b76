package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/migrate"
)

type env struct {
	dir  string
	cfg  *config.Config
	logg *logger.Logger
}

func main() {
	e := &env{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the escrow database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			e.logg = logger.New(logger.Options{
				ServiceName: "migrate",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				WarnStack:   cfg.App.LogWarnStack,
				Console:     cfg.App.ConsoleLogs(),
			})
			cmd.SetContext(e.logg.WithFields(cmd.Context(), map[string]any{
				"env":     cfg.App.Env,
				"command": cmd.Name(),
			}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&e.dir, "dir", "", "read migrations from this directory instead of the embedded set")

	root.AddCommand(
		e.runnerCmd("up", "Apply every pending migration", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			return r.Up(ctx)
		}),
		e.runnerCmd("down", "Roll back the latest migration", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			return r.Down(ctx)
		}),
		e.runnerCmd("status", "List migrations and their state", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			return r.Status(ctx)
		}),
		e.runnerCmd("to VERSION", "Move the schema to VERSION (YYYYMMDDHHMMSS), up or down", cobra.ExactArgs(1), func(ctx context.Context, r *migrate.Runner, args []string) error {
			return r.To(ctx, args[0])
		}),
		&cobra.Command{
			Use:   "create NAME",
			Short: "Write an empty goose migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(e.fileDir(), args[0])
				if err != nil {
					return err
				}
				e.logg.Info(e.logg.WithField(cmd.Context(), "path", path), "migration created")
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration file names and goose markers",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return migrate.ValidateDir(e.fileDir())
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		if e.logg != nil {
			e.logg.Error(root.Context(), "migrate failed", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (e *env) fileDir() string {
	if e.dir != "" {
		return e.dir
	}
	return migrate.DefaultDir
}

type runnerFunc func(ctx context.Context, r *migrate.Runner, args []string) error

// runnerCmd builds a subcommand that needs a live database.
func (e *env) runnerCmd(use, short string, args cobra.PositionalArgs, fn runnerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx := cmd.Context()
			client, err := db.New(ctx, e.cfg.DB, e.logg)
			if err != nil {
				return err
			}
			defer client.Close()
			sqlDB, err := client.DB().DB()
			if err != nil {
				return err
			}

			var source fs.FS
			if e.dir != "" {
				source = os.DirFS(e.dir)
			}
			runner, err := migrate.NewRunner(sqlDB, migrate.Dialect(e.cfg.DB), source, e.logg)
			if err != nil {
				return err
			}
			return fn(ctx, runner, argv)
		},
	}
}
