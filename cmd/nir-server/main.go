package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/nir/leitos/internal/config"
	"github.com/nir/leitos/internal/platform/db"
	"github.com/nir/leitos/internal/platform/sandbox"
	"github.com/nir/leitos/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nir-server",
		Short: "Bed occupancy API for the hospital admissions office",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// migrationSchema is the --schema flag, or DB_SCHEMA when the flag is unset,
// so migrations land where the server reads.
func migrationSchema(cmd *cobra.Command, cfg *config.Config) string {
	if schema, _ := cmd.Flags().GetString("schema"); schema != "" {
		return schema
	}
	return cfg.DBSchema
}

func newMigrator(cmd *cobra.Command, cfg *config.Config) (*db.Migrator, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir != "" {
		return db.NewDirMigrator(pool, dir), pool.Close, nil
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	cmd.PersistentFlags().String("dir", "", "Read migrations from a directory instead of the embedded set")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := migrationSchema(cmd, cfg)
			migrator, closeFn, err := newMigrator(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := migrationSchema(cmd, cfg)
			migrator, closeFn, err := newMigrator(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo ward into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				return fmt.Errorf("seeding the memory store has no lasting effect; set STORE_DRIVER to sqlite or postgres")
			}
			extra, _ := cmd.Flags().GetInt("extra-beds")
			if extra < 0 {
				extra = cfg.SeedExtraBeds
			}

			logger := newLogger(cfg)
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			clk, err := newClock(cfg)
			if err != nil {
				return err
			}
			sc := sandbox.DefaultSeedConfig()
			sc.ExtraBeds = extra
			seeder := sandbox.NewSeeder(st.repo, clk, sc)
			seeder.SetLogger(logger)
			res, err := seeder.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Store already has beds; nothing seeded.")
				return nil
			}
			fmt.Printf("Seeded %d patient(s), %d bed(s), %d admission(s) in %s.\n",
				res.Patients, res.Beds, res.Admissions, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("extra-beds", -1, "Synthetic beds to add on top of the demo ward (default SEED_EXTRA_BEDS)")
	return cmd
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer srv.Close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := srv.Start(addr); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
