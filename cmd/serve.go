package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unisend/mailgate/internal/accounts"
	"github.com/unisend/mailgate/internal/config"
	"github.com/unisend/mailgate/internal/google"
	"github.com/unisend/mailgate/internal/instrumentation"
	"github.com/unisend/mailgate/internal/logging"
	"github.com/unisend/mailgate/internal/mailing"
	"github.com/unisend/mailgate/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode          bool
		httpAddr           string
		metricsEnabled     bool
		metricsAddr        string
		dbPath             string
		googleClientID     string
		googleClientSecret string
		redirectURL        string
		setupURL           string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mailgate API server",
		Long: `Start the HTTP API server that backs the webmail front-end.

The server exposes the OAuth link flow under /api/auth and the mailing
operations (list, single, send, reply, forward, spam, attachment) under
/api/mailing. Linked accounts are kept in a local SQLite database.

Configuration:
  Every flag can also be set through the environment (HTTP_ADDR,
  METRICS_ADDR, METRICS_ENABLED, DB_PATH, GOOGLE_CLIENT_ID,
  GOOGLE_CLIENT_SECRET, OAUTH_REDIRECT_URL, SETUP_URL, DEBUG). A .env
  file in the working directory is read first. Flags win over the
  environment when set explicitly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			// Flags override environment only when explicitly set.
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("db-path") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("google-client-id") {
				cfg.GoogleClientID = googleClientID
			}
			if cmd.Flags().Changed("google-client-secret") {
				cfg.GoogleClientSecret = googleClientSecret
			}
			if cmd.Flags().Changed("redirect-url") {
				cfg.OAuthRedirectURL = redirectURL
			}
			if cmd.Flags().Changed("setup-url") {
				cfg.SetupURL = setupURL
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debugMode
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "API server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().StringVar(&dbPath, "db-path", "mailgate.db", "Path to the SQLite account database. Can also use DB_PATH env var.")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "Registered OAuth callback URL of this server. Can also use OAUTH_REDIRECT_URL env var.")
	cmd.Flags().StringVar(&setupURL, "setup-url", "", "Front-end page the OAuth callback redirects to. Can also use SETUP_URL env var.")

	return cmd
}

func runServe(cfg config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(cfg.Debug)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	store, err := accounts.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("account store close failed", logging.Err(err))
		}
	}()

	broker := google.NewBroker(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	runner := mailing.NewRunner(broker, store, provider.Metrics(), logger)
	service := mailing.NewService(store, runner, logger)

	healthChecker := server.NewHealthChecker()
	api := server.NewAPI(service, store, broker, cfg.SetupURL, logger, provider.Metrics())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(healthChecker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	healthChecker.SetReady(true)
	logger.Info("api server started", "addr", cfg.HTTPAddr)

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping api server")
		healthChecker.SetShuttingDown()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(stopCtx); err != nil {
			return fmt.Errorf("error shutting down api server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("api server stopped with error: %w", err)
		}
	}

	logger.Info("api server gracefully stopped")
	return nil
}
