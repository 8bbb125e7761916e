package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/frontdesk/frontdesk/internal/config"
	"github.com/frontdesk/frontdesk/internal/domain/patient"
	"github.com/frontdesk/frontdesk/internal/domain/scheduling"
	"github.com/frontdesk/frontdesk/internal/platform/apperr"
	"github.com/frontdesk/frontdesk/internal/platform/auth"
	"github.com/frontdesk/frontdesk/internal/platform/db"
	"github.com/frontdesk/frontdesk/internal/platform/kv"
	"github.com/frontdesk/frontdesk/internal/platform/middleware"
	"github.com/frontdesk/frontdesk/internal/platform/websocket"
)

const version = "0.1.0"

// bodyLimit caps request bodies.
const bodyLimit = "1M"

func main() {
	rootCmd := &cobra.Command{
		Use:   "frontdesk-server",
		Short: "Hospital front desk API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(appointmentsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the front desk API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres store only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
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

func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != config.StorePostgres {
		return nil, fmt.Errorf("migrations apply to the postgres store only (STORE_DRIVER=%s)", cfg.StoreDriver)
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Manage appointments",
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete a hospital's appointments dated before today",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("hospital")
			hospitalID, err := uuid.Parse(raw)
			if err != nil || hospitalID == uuid.Nil {
				return fmt.Errorf("--hospital must be a hospital UUID")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.close()

			n, err := newAppointmentService(cfg, st, logger).PrunePast(cmd.Context(), hospitalID)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d appointment(s).\n", n)
			return nil
		},
	}
	pruneCmd.Flags().String("hospital", "", "Hospital account UUID")
	cmd.AddCommand(pruneCmd)

	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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

// store bundles the repositories of whichever backend STORE_DRIVER selects.
type store struct {
	tx           db.Transactor
	health       db.HealthChecker
	active       patient.ActiveRepository
	history      patient.HistoryRepository
	appointments scheduling.AppointmentRepository
	close        func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreLevelDB:
		kvs, err := kv.Open(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		return newKVStore(kvs), nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{
			tx:           db.NewTxManager(pool),
			health:       db.PoolHealth{Pool: pool},
			active:       patient.NewActiveRepoPG(pool),
			history:      patient.NewHistoryRepoPG(pool),
			appointments: scheduling.NewAppointmentRepoPG(pool),
			close:        pool.Close,
		}, nil
	}
}

func newKVStore(kvs *kv.Store) *store {
	return &store{
		tx:           kvs,
		health:       kvs,
		active:       patient.NewActiveRepoKV(kvs),
		history:      patient.NewHistoryRepoKV(kvs),
		appointments: scheduling.NewAppointmentRepoKV(kvs),
		close:        func() { kvs.Close() },
	}
}

func newAppointmentService(cfg *config.Config, st *store, logger zerolog.Logger) *scheduling.Service {
	loc, _ := cfg.Location()
	return scheduling.NewService(st.tx, st.appointments, cfg.DailyCapacity, loc, logger)
}

// newServer wires middleware, health checks and the domain routes.
func newServer(cfg *config.Config, st *store, logger zerolog.Logger) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health))

	apiV1 := e.Group("/api/v1")

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		devHospital, err := uuid.Parse(cfg.DevHospitalID)
		if err != nil {
			return nil, fmt.Errorf("DEV_HOSPITAL_ID: %w", err)
		}
		logger.Warn().Str("hospital_id", devHospital.String()).Msg("development auth: every request acts as this hospital")
		apiV1.Use(auth.DevAuthMiddleware(devHospital, auth.AuthSkipper))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Rate limiting keys on the hospital, so it runs after auth.
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))

	// Live desk feed
	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// Appointment domain
	appointmentSvc := newAppointmentService(cfg, st, logger)
	appointmentSvc.SetPublisher(hub)
	scheduling.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	// Patient domain
	patientSvc := patient.NewService(st.tx, st.active, st.history, st.appointments, loc, logger)
	patientSvc.SetPublisher(hub)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	// Store
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	e, err := newServer(cfg, st, logger)
	if err != nil {
		return err
	}

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
