package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/orderdesk/remindbot/internal/auth"
	"github.com/orderdesk/remindbot/internal/board"
	"github.com/orderdesk/remindbot/internal/config"
	"github.com/orderdesk/remindbot/internal/database"
	"github.com/orderdesk/remindbot/internal/identity"
	"github.com/orderdesk/remindbot/internal/logging"
	"github.com/orderdesk/remindbot/internal/notify"
	"github.com/orderdesk/remindbot/internal/reminders"
	"github.com/orderdesk/remindbot/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "remindbot",
		Short: "Chat reminder scheduler and order board proxy",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("time-zone", defaults.GetString("time.zone"), "IANA zone reminders are entered in")
	cmd.PersistentFlags().Int("poll-interval", defaults.GetInt("scheduler.poll_interval_s"), "Due-reminder poll interval in seconds")
	cmd.PersistentFlags().String("webhook-url", defaults.GetString("notify.webhook_url"), "Chat notification webhook URL")
	cmd.PersistentFlags().Int("notify-timeout", defaults.GetInt("notify.timeout_s"), "Notification delivery timeout in seconds")
	cmd.PersistentFlags().String("board-base-url", defaults.GetString("board.base_url"), "Board API base URL")
	cmd.PersistentFlags().String("board-id", defaults.GetString("board.id"), "Board identifier")
	cmd.PersistentFlags().String("signing-secret", "", "API token signing secret (overrides env)")
	cmd.PersistentFlags().String("api-key", "", "Command-layer API key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "time.zone", "time-zone")
	bindFlag(cmd, "scheduler.poll_interval_s", "poll-interval")
	bindFlag(cmd, "notify.webhook_url", "webhook-url")
	bindFlag(cmd, "notify.timeout_s", "notify-timeout")
	bindFlag(cmd, "board.base_url", "board-base-url")
	bindFlag(cmd, "board.id", "board-id")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.api_key", "api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runService(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	normalizer, err := reminders.NewNormalizer(appConfig.TimeZone)
	if err != nil {
		return err
	}

	store, err := reminders.NewStore(reminders.StoreConfig{
		Database:   db,
		Normalizer: normalizer,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	identities, err := identity.NewService(identity.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "remindbot",
		Audience:      "remindbot-api",
	})
	if err != nil {
		return err
	}

	notifier, err := notify.NewWebhook(notify.WebhookConfig{
		URL:     appConfig.WebhookURL,
		Timeout: appConfig.NotifyTimeout,
	})
	if err != nil {
		return err
	}

	var boardClient *board.Client
	if appConfig.BoardConfigured() {
		boardClient, err = board.NewClient(board.ClientConfig{
			BaseURL: appConfig.BoardBaseURL,
			APIKey:  appConfig.BoardAPIKey,
			Token:   appConfig.BoardToken,
			BoardID: appConfig.BoardID,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("board integration disabled, no credentials configured")
	}

	dispatcher := server.NewDeliveryDispatcher()

	scheduler, err := reminders.NewScheduler(reminders.SchedulerConfig{
		Store:    store,
		Notifier: notifier,
		Clock:    time.Now,
		Interval: appConfig.PollInterval,
		Observer: dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		APIKey:       appConfig.APIKey,
		Store:        store,
		Normalizer:   normalizer,
		Identities:   identities,
		Board:        boardClient,
		Dispatcher:   dispatcher,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
