package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Pryanik-M/LiveHeart/internal/config"
	"github.com/Pryanik-M/LiveHeart/internal/domain/account"
	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
	"github.com/Pryanik-M/LiveHeart/internal/domain/twofactor"
	"github.com/Pryanik-M/LiveHeart/internal/platform/apierror"
	"github.com/Pryanik-M/LiveHeart/internal/platform/db"
	"github.com/Pryanik-M/LiveHeart/internal/platform/mailer"
	"github.com/Pryanik-M/LiveHeart/internal/platform/middleware"
	"github.com/Pryanik-M/LiveHeart/internal/platform/secretbox"
	"github.com/Pryanik-M/LiveHeart/internal/platform/session"
	"github.com/Pryanik-M/LiveHeart/internal/report"
	"github.com/Pryanik-M/LiveHeart/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "liveheart",
		Short: "LiveHeart echocardiography records server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(sessionCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// withPool runs fn against a fresh pool that is closed afterwards.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

// migrationSource prefers an on-disk directory so migrations can be edited
// without rebuilding; otherwise the embedded set is used.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd, statuses)
				return nil
			})
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			if username == "" {
				username = email
			}
			return withAccounts(func(ctx context.Context, svc *account.Service) error {
				u, err := svc.CreateUser(ctx, account.NewUserInput{Username: username, Email: email, Password: password})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("username", "", "Display name (defaults to the email)")
	createCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(createCmd)

	setPasswordCmd := &cobra.Command{
		Use:   "set-password",
		Short: "Replace an account password",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			return withAccounts(func(ctx context.Context, svc *account.Service) error {
				if err := svc.SetPassword(ctx, email, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated.")
				return nil
			})
		},
	}
	setPasswordCmd.Flags().String("email", "", "Login email")
	setPasswordCmd.Flags().String("password", "", "New password")
	cmd.AddCommand(setPasswordCmd)

	for _, toggle := range []struct {
		use, short string
		active     bool
	}{
		{"activate", "Allow an account to log in", true},
		{"deactivate", "Block an account from logging in", false},
	} {
		active := toggle.active
		c := &cobra.Command{
			Use:   toggle.use,
			Short: toggle.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				email, _ := cmd.Flags().GetString("email")
				if email == "" {
					return fmt.Errorf("--email is required")
				}
				return withAccounts(func(ctx context.Context, svc *account.Service) error {
					return svc.SetActive(ctx, email, active)
				})
			},
		}
		c.Flags().String("email", "", "Login email")
		cmd.AddCommand(c)
	}

	return cmd
}

func withAccounts(fn func(ctx context.Context, svc *account.Service) error) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		logger := newLogger(cfg)
		svc := account.NewService(account.NewUserRepo(pool), newMailer(cfg, logger), logger)
		return fn(ctx, svc)
	})
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired session records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				n, err := session.NewPGStore(pool).DeleteExpired(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", n)
				return nil
			})
		},
	})
	return cmd
}

func newMailer(cfg *config.Config, logger zerolog.Logger) *mailer.Mailer {
	var sender mailer.EmailSender
	if cfg.MailBackend == "smtp" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		sender = mailer.NewLogSender(logger)
	}
	return mailer.New(sender, mailer.NewTemplates())
}

func newSessionStore(cfg *config.Config, pool *pgxpool.Pool) session.Store {
	if cfg.SessionBackend == "memory" {
		return session.NewMemoryStore()
	}
	return session.NewPGStore(pool)
}

func twoFactorConfig(cfg *config.Config) twofactor.Config {
	tf := twofactor.DefaultConfig()
	if cfg.TwoFactorCodeLength > 0 {
		tf.CodeLength = cfg.TwoFactorCodeLength
	}
	if cfg.TwoFactorCodeTTL > 0 {
		tf.CodeTTL = cfg.TwoFactorCodeTTL
	}
	if cfg.TwoFactorCooldown > 0 {
		tf.Cooldown = cfg.TwoFactorCooldown
	}
	if cfg.TOTPIssuer != "" {
		tf.Issuer = cfg.TOTPIssuer
	}
	return tf
}

// services bundles everything the HTTP layer needs.
type services struct {
	sessions    *session.Manager
	accounts    *account.Service
	twoFactor   *twofactor.Service
	examination *examination.Service
}

// newEcho builds the server with global middleware and every route mounted.
func newEcho(cfg *config.Config, logger zerolog.Logger, pinger db.Pinger, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.SessionCookieSecure))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(svc.sessions.Middleware())
	e.Use(twofactor.CheckAccount(svc.accounts, svc.sessions))
	e.Use(middleware.Audit(logger, session.UserID))

	e.GET("/health", db.HealthHandler(pinger, version))

	// Groups carry no middleware: echo backs group middleware with a catch-all
	// route, which would turn unknown paths into 401s. Guards go on each route.
	authGroup := e.Group("/auth")
	root := e.Group("")
	loginRequired := twofactor.RequireLogin()
	verified := twofactor.RequireTwoFactor()

	loginLimit := middleware.RateLimit(middleware.PerMinute(cfg.LoginRateLimitPerMin))
	twofactor.NewHandler(svc.twoFactor, svc.sessions).RegisterRoutes(authGroup, loginRequired, loginLimit)
	account.NewHandler(svc.accounts, svc.sessions, svc.twoFactor, svc.examination).RegisterRoutes(authGroup, loginRequired, verified)
	examination.NewHandler(svc.examination).RegisterRoutes(root, verified)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	box, err := secretbox.New(cfg.EncryptionKey, logger)
	if err != nil {
		return err
	}

	mail := newMailer(cfg, logger)
	store := newSessionStore(cfg, pool)
	accountSvc := account.NewService(account.NewUserRepo(pool), mail, logger)
	twoFactorSvc := twofactor.NewService(accountSvc, twofactor.NewDeviceRepo(pool, box), store, mail, twoFactorConfig(cfg), logger)
	tx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	examSvc := examination.NewService(examination.NewRepo(pool), tx, report.Default(cfg.ReportInstitution, logger), logger)

	key := cfg.SessionKey()
	if len(key) == 0 {
		// Development without SESSION_SECRET: cookies die with the process.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		logger.Warn().Msg("SESSION_SECRET is empty, using a random key")
	}
	sessions := session.NewManager(store, session.Config{
		Key:    key,
		TTL:    cfg.SessionTTL,
		Secure: cfg.SessionCookieSecure,
	}, logger)

	e := newEcho(cfg, logger, pool, services{
		sessions:    sessions,
		accounts:    accountSvc,
		twoFactor:   twoFactorSvc,
		examination: examSvc,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
