package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicq/clinicq/internal/config"
	"github.com/clinicq/clinicq/internal/domain/directory"
	"github.com/clinicq/clinicq/internal/domain/payment"
	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/domain/tenantadmin"
	"github.com/clinicq/clinicq/internal/platform/activitylog"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/middleware"
	"github.com/clinicq/clinicq/internal/platform/payments"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicq-server",
		Short: "Multi-tenant clinic queue API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

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

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// bootstrap opens the registry pool, ensures the shared tenant registry
// exists, and builds the routing pieces every command needs.
func bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*db.Manager, *db.Migrator, *db.AllowList, *tenantadmin.Service, func(), error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, db.RegistrySchema); err != nil {
		pool.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("ensure tenant registry: %w", err)
	}

	migrator, err := db.NewMigrator(db.Catalog(), logger)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, nil, err
	}

	mgr := db.NewManager(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	allow := db.NewAllowList(db.NewPGTenantDirectory(pool), time.Duration(cfg.AllowTTLSecs)*time.Second)

	tenantSvc := tenantadmin.NewService(
		tenantadmin.NewRepoPG(pool),
		tenantadmin.NewDBBootstrapper(mgr, migrator, allow),
		activitylog.NewLogRecorder(logger),
	)

	cleanup := func() {
		mgr.CloseAll()
		pool.Close()
	}
	return mgr, migrator, allow, tenantSvc, cleanup, nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	registryPool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer registryPool.Close()
	if _, err := registryPool.Exec(ctx, db.RegistrySchema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure tenant registry")
	}
	logger.Info().Msg("connected to database")

	migrator, err := db.NewMigrator(db.Catalog(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid migration catalog")
	}

	mgr := db.NewManager(cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	defer mgr.CloseAll()
	allow := db.NewAllowList(db.NewPGTenantDirectory(registryPool), time.Duration(cfg.AllowTTLSecs)*time.Second)

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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Health check runs before auth so probes need no credentials.
	e.GET("/health", db.HealthHandler(registryPool, mgr))

	tenantMW := db.TenantMiddleware(mgr, allow, migrator, logger, cfg.DefaultTenant)

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		logger.Warn().Msg("dev auth enabled; every request is treated as admin")
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSecret),
		})
	}

	// Authenticated API. The tenant middleware runs after auth so the
	// token's tenant claim wins over the header.
	api := e.Group("/api/v1", authMW, tenantMW)

	// Unauthenticated surface for provider callbacks. Still
	// tenant-resolved: the provider is configured to send X-Tenant-ID.
	public := e.Group("/api/v1/public", tenantMW)

	activity := activitylog.NewPGRecorder(logger)

	// Tenant registry (admin only)
	tenantSvc := tenantadmin.NewService(
		tenantadmin.NewRepoPG(registryPool),
		tenantadmin.NewDBBootstrapper(mgr, migrator, allow),
		activity,
	)
	tenantadmin.NewHandler(tenantSvc).RegisterRoutes(api)

	// Directory
	dirSvc := directory.NewService(directory.NewDoctorRepoPG(registryPool), directory.NewPatientRepoPG(registryPool))
	directory.NewHandler(dirSvc).RegisterRoutes(api)

	// Queue
	queueSvc := queue.NewService(queue.NewRepoPG(registryPool), activity)
	queue.NewHandler(queueSvc).RegisterRoutes(api)

	// Payments
	if cfg.PaymentsEnabled() {
		provider := payments.NewRazorpayClient(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentSecret)
		paySvc := payment.NewService(
			payment.NewRepoPG(registryPool),
			provider,
			queueSvc,
			payment.Secrets{
				Provider:      cfg.PaymentProvider,
				Secret:        cfg.PaymentSecret,
				WebhookSecret: cfg.WebhookSecret,
			},
			activity,
		)
		payment.NewHandler(paySvc).RegisterRoutes(api, public)
	} else {
		logger.Warn().Msg("PAYMENT_KEY_ID not set; online payment routes disabled")
	}

	// Start and wait for shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run tenant schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Bring tenant schemas up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("tenant")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			mgr, migrator, _, tenantSvc, cleanup, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			var slugs []string
			if slug != "" {
				slugs = []string{slug}
			} else {
				tenants, err := tenantSvc.List(ctx)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					if t.Status == tenantadmin.StatusActive {
						slugs = append(slugs, t.Slug)
					}
				}
			}

			for _, s := range slugs {
				schema, err := db.NormalizeSchema(s)
				if err != nil {
					return err
				}
				pool, err := mgr.Get(ctx, schema)
				if err != nil {
					return err
				}
				if err := migrator.EnsureTenant(ctx, pool, schema); err != nil {
					return fmt.Errorf("migrate %s: %w", schema, err)
				}
				fmt.Printf("tenant %s is up to date\n", schema)
			}
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Migrate a single tenant (default: all active tenants)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("tenant")
			if slug == "" {
				return fmt.Errorf("--tenant is required")
			}

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			mgr, migrator, _, _, cleanup, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			schema, err := db.NormalizeSchema(slug)
			if err != nil {
				return err
			}
			pool, err := mgr.Get(ctx, schema)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(ctx, pool, schema)
			if err != nil {
				return err
			}

			fmt.Printf("Migration status for tenant: %s\n", schema)
			fmt.Printf("%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "EXECUTED AT")
			for _, s := range statuses {
				status := "pending"
				executedAt := ""
				if s.Applied {
					status = "applied"
					if s.ExecutedAt != nil {
						executedAt = s.ExecutedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10s %-30s %-10s %s\n", s.Version, s.Name, status, executedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant slug")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage the tenant registry",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and provision its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("slug")
			name, _ := cmd.Flags().GetString("name")
			if slug == "" || name == "" {
				return fmt.Errorf("--slug and --name are required")
			}

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			_, _, _, tenantSvc, cleanup, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := tenantSvc.Register(ctx, slug, name)
			if err != nil {
				return err
			}
			fmt.Printf("tenant %s registered and provisioned\n", t.Slug)
			return nil
		},
	}
	createCmd.Flags().String("slug", "", "Tenant identifier (lowercase letters, digits, underscores)")
	createCmd.Flags().String("name", "", "Display name")
	cmd.AddCommand(createCmd)

	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a tenant's access",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("slug")
			if slug == "" {
				return fmt.Errorf("--slug is required")
			}

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			_, _, _, tenantSvc, cleanup, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := tenantSvc.Revoke(ctx, slug); err != nil {
				return err
			}
			fmt.Printf("tenant %s revoked\n", slug)
			return nil
		},
	}
	revokeCmd.Flags().String("slug", "", "Tenant identifier")
	cmd.AddCommand(revokeCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			_, _, _, tenantSvc, cleanup, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			tenants, err := tenantSvc.List(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s %-10s %s\n", "SLUG", "STATUS", "NAME")
			for _, t := range tenants {
				fmt.Printf("%-30s %-10s %s\n", t.Slug, t.Status, t.Name)
			}
			return nil
		},
	}
	cmd.AddCommand(listCmd)

	return cmd
}
