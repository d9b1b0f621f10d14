package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/cohort/internal/config"
	"github.com/ehr/cohort/internal/domain/period"
	"github.com/ehr/cohort/internal/platform/auth"
	"github.com/ehr/cohort/internal/platform/db"
	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/middleware"
	"github.com/ehr/cohort/internal/platform/refdata"
	"github.com/ehr/cohort/internal/platform/reporting"
	"github.com/ehr/cohort/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cohort-server",
		Short: "Cohort indicator reporting server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(periodCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reporting API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			if cfg.DBDriver == config.DriverSQLite {
				conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer conn.Close()

				count, err := db.ApplySQLite(ctx, conn, migrations.FS)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s.\n", count, cfg.DatabaseURL)
				return nil
			}

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations (postgres only)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBDriver != config.DriverPostgres {
				return fmt.Errorf("migrate status requires DB_DRIVER=%s", config.DriverPostgres)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func periodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Print the date range of a reporting period",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := periodFromFlags(cmd)
			if err != nil {
				return err
			}
			rng, err := spec.Resolve()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rng)
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a library indicator or temporal fact and print JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			indicatorID, _ := cmd.Flags().GetString("indicator")
			factID, _ := cmd.Flags().GetString("fact")
			location, _ := cmd.Flags().GetInt64("location")

			if (indicatorID == "") == (factID == "") {
				return fmt.Errorf("exactly one of --indicator or --fact is required")
			}
			spec, err := periodFromFlags(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if location == 0 {
				location = cfg.DefaultLocation
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.EvaluationTimeout)
			defer cancel()
			logger := newLogger(cfg, os.Stderr)
			ctx = logger.WithContext(ctx)

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			refs, err := referenceProvider(st.exec, cfg.ReferenceDataFile)
			if err != nil {
				return err
			}
			eval := reporting.NewEvaluator(st.exec, refs)
			return runEvaluate(ctx, cmd.OutOrStdout(), eval, indicatorID, factID, spec, location)
		},
	}
	addPeriodFlags(cmd)
	cmd.Flags().String("indicator", "", "Indicator ID (see GET /api/v1/reports/indicators)")
	cmd.Flags().String("fact", "", "Temporal fact ID")
	cmd.Flags().Int64("location", 0, "Location ID (defaults to DEFAULT_LOCATION)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			locations, _ := cmd.Flags().GetInt64Slice("location")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to issue tokens")
			}

			token, err := auth.IssueToken(tokenClaims(cfg, subject, roles, locations, time.Now(), ttl), []byte(cfg.AuthSigningKey))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user ID)")
	cmd.Flags().StringSlice("role", []string{auth.RoleViewer}, "Roles granted to the token")
	cmd.Flags().Int64Slice("location", nil, "Locations the token may report on")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)
	zerolog.DefaultContextLogger = &logger

	// Database
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	refs, err := referenceProvider(st.exec, cfg.ReferenceDataFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load reference data")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", db.HealthHandler(st.health))

	// API groups
	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(cfg.EvaluationTimeout))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	eval := reporting.NewEvaluator(st.exec, refs)
	reporting.NewHandler(eval, cfg.DefaultLocation).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
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

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Logger()
}

// store is an open clinical store, either a pgx pool or a SQLite handle.
type store struct {
	exec   executor.Executor
	health db.Store
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqliteStore(conn), nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return pgStore(pool), nil
	}
}

func sqliteStore(conn *sql.DB) *store {
	return &store{
		exec:   executor.NewSQL(conn),
		health: db.SQLStore(conn),
		close:  func() { conn.Close() },
	}
}

func pgStore(pool *pgxpool.Pool) *store {
	return &store{
		exec:   executor.NewPG(pool),
		health: db.PGStore(pool),
		close:  pool.Close,
	}
}

// referenceProvider reads placeholders from the reference_data table, with
// entries of an optional YAML file taking precedence.
func referenceProvider(exec executor.Executor, file string) (refdata.Provider, error) {
	providers := refdata.Layered{refdata.NewStore(exec)}
	if file != "" {
		static, err := refdata.LoadFile(file)
		if err != nil {
			return nil, err
		}
		providers = append(providers, static)
	}
	return providers, nil
}

func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().Int("year", 0, "Reporting year")
	cmd.Flags().String("quarter", "", "Quarter (Q1..Q4 or 1..4)")
	cmd.Flags().String("month", "", "Month within the quarter (M1..M3 or 1..3)")
}

func periodFromFlags(cmd *cobra.Command) (period.Spec, error) {
	year, _ := cmd.Flags().GetInt("year")
	quarter, _ := cmd.Flags().GetString("quarter")
	month, _ := cmd.Flags().GetString("month")
	return parsePeriod(year, quarter, month)
}

func parsePeriod(year int, quarter, month string) (period.Spec, error) {
	if year < 1 {
		return period.Spec{}, fmt.Errorf("--year is required")
	}
	q, err := period.ParseQuarter(strings.TrimSpace(quarter))
	if err != nil {
		return period.Spec{}, err
	}
	m, err := period.ParseMonth(strings.TrimSpace(month))
	if err != nil {
		return period.Spec{}, err
	}
	spec := period.Spec{Year: year, Quarter: q, Month: m}
	if _, err := spec.Resolve(); err != nil {
		return period.Spec{}, err
	}
	return spec, nil
}

func runEvaluate(ctx context.Context, out io.Writer, eval *reporting.Evaluator, indicatorID, factID string, spec period.Spec, location int64) error {
	if indicatorID != "" {
		ind := reporting.FindIndicator(indicatorID)
		if ind == nil {
			return fmt.Errorf("unknown indicator %q", indicatorID)
		}
		members, err := eval.EvaluateIndicator(ctx, ind, spec, location)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]interface{}{
			"indicator": ind.ID,
			"period":    spec,
			"location":  location,
			"count":     members.Len(),
			"members":   members,
		})
	}

	f := reporting.FindFact(factID)
	if f == nil {
		return fmt.Errorf("unknown fact %q", factID)
	}
	facts, err := eval.EvaluateFact(ctx, f, spec, location)
	if err != nil {
		return err
	}
	results := reporting.SortedFacts(facts)
	qualified := 0
	for _, r := range results {
		if r.Fact.Qualified {
			qualified++
		}
	}
	return writeJSON(out, map[string]interface{}{
		"fact":      f.ID,
		"period":    spec,
		"location":  location,
		"qualified": qualified,
		"results":   results,
	})
}

func tokenClaims(cfg *config.Config, subject string, roles []string, locations []int64, now time.Time, ttl time.Duration) auth.Claims {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.AuthIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:     roles,
		Locations: locations,
	}
	if cfg.AuthAudience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.AuthAudience}
	}
	return claims
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
