// main.go
//
// Process entry for the Storytopia Go server.
//
//	storytopia serve     # migrate, then serve HTTP on $PORT
//	storytopia migrate   # apply pending migrations and exit
//
// Configuration comes from the environment (see internal/config); a .env file
// in the working directory is loaded first when present.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/storytopia/apps/go-server/internal/config"
	"github.com/robalobadob/storytopia/apps/go-server/internal/generator"
	"github.com/robalobadob/storytopia/apps/go-server/internal/httpserver"
	"github.com/robalobadob/storytopia/apps/go-server/internal/lessons"
	"github.com/robalobadob/storytopia/apps/go-server/internal/metrics"
	"github.com/robalobadob/storytopia/apps/go-server/internal/results"
	"github.com/robalobadob/storytopia/apps/go-server/internal/store"
)

var version = "dev"

func main() {
	cfg := bootstrap(os.Stderr)
	if err := buildRootCmd(cfg).Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// bootstrap loads .env, configures logging, and only then reads the rest of
// the configuration so that its warnings honour LOG_LEVEL and LOG_FORMAT.
func bootstrap(out io.Writer) config.Config {
	_ = godotenv.Load()
	level, format := config.LogSettings()
	setupLogging(out, level, format)
	return config.Load()
}

// setupLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func setupLogging(out io.Writer, level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func buildRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "storytopia",
		Short:        "Storytopia drawing and quest backend",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(cfg), buildMigrateCmd(cfg))
	return root
}

func buildServeCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port")
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	cmd.Flags().StringVar(&cfg.GeneratorURL, "generator", cfg.GeneratorURL, "Generation service base URL")
	return cmd
}

func buildMigrateCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			applied, err := migrate(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	if err := lessons.Init(); err != nil {
		return fmt.Errorf("load lessons: %w", err)
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if _, err := migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sessions := store.NewLimitedStore(store.Limits{
		MaxPerPlayer: cfg.SessionsPerPlayer,
		IdleTTL:      cfg.SessionIdleTTL,
	})
	srv := httpserver.New(httpserver.Options{
		Config:    cfg,
		Store:     sessions,
		Results:   results.NewStore(db),
		Generator: generator.New(cfg.GeneratorURL, cfg.GeneratorTimeout),
		Metrics:   metrics.New(),
	})
	log.Info().
		Str("port", cfg.Port).
		Str("generator", cfg.GeneratorURL).
		Int("lessons", lessons.Stats()).
		Msg("starting storytopia server")
	return srv.Start(ctx, ":"+cfg.Port)
}
