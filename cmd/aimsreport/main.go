package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/behavioral-quality/aimsreport/internal/adapters/ehr/postgres"
	"github.com/behavioral-quality/aimsreport/internal/adapters/ehr/snapshot"
	"github.com/behavioral-quality/aimsreport/internal/adapters/ehr/sqlserver"
	"github.com/behavioral-quality/aimsreport/internal/aims"
	"github.com/behavioral-quality/aimsreport/internal/shared/config"
	"github.com/behavioral-quality/aimsreport/internal/shared/database"
	"github.com/behavioral-quality/aimsreport/internal/shared/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "aimsreport",
		Short:         "AIMS screening compliance report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

func runCmd() *cobra.Command {
	var date, format, out string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate the report once and write it to a file or stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			measurementDate, err := parseDate(date)
			if err != nil {
				return err
			}
			format = strings.ToLower(format)
			if format != "json" && format != "xlsx" {
				return fmt.Errorf("--format must be json or xlsx, got %q", format)
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			source, closeSource, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSource()

			rules, err := aims.NewRules(cfg.Report)
			if err != nil {
				return err
			}

			report, err := aims.NewService(source, rules, logger).Generate(ctx, measurementDate)
			if err != nil {
				return err
			}

			return withOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
				if format == "xlsx" {
					return aims.WriteXLSX(w, report)
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "measurement date (YYYY-MM-DD), defaults to REPORT_DEFAULT_MEASUREMENT_DATE")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var date, out string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export the report input from the configured source to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			rules, err := aims.NewRules(cfg.Report)
			if err != nil {
				return err
			}
			measurementDate, err := parseDate(date)
			if err != nil {
				return err
			}
			if measurementDate == (civil.Date{}) {
				measurementDate = rules.DefaultMeasurementDate
			}

			ctx := cmd.Context()
			source, closeSource, err := openSource(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSource()

			snap, err := source.Snapshot(ctx, measurementDate)
			if err != nil {
				return err
			}
			if err := snapshot.Write(out, snap); err != nil {
				return err
			}

			logger.Info().
				Str("source", source.Name()).
				Str("path", out).
				Int("clients", len(snap.Clients)).
				Int("medications", len(snap.Medications)).
				Int("screenings", len(snap.Screenings)).
				Msg("wrote snapshot")
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "measurement date (YYYY-MM-DD) used to pre-filter rows")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output JSON file")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the reporting schema to the Postgres replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			db, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db.Pool, logger); err != nil {
				return err
			}
			logger.Info().Msg("migrations complete")
			return nil
		},
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger, nil
}

// openSource connects the configured report source. The returned func
// releases its connections.
func openSource(ctx context.Context, cfg *config.Config) (aims.Source, func(), error) {
	switch cfg.Source.Driver {
	case config.DriverSQLServer:
		db, err := database.OpenSQLServer(ctx, cfg.SQLServer)
		if err != nil {
			return nil, nil, err
		}
		return sqlserver.New(db, sqlserver.ConfigFrom(cfg.SQLServer)), func() { db.Close() }, nil
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db.Pool), db.Close, nil
	case config.DriverSnapshot:
		return snapshot.New(cfg.Snapshot.Path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

// parseDate accepts YYYY-MM-DD or empty, which yields the zero date.
func parseDate(value string) (civil.Date, error) {
	if value == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func withOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
