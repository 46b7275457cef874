package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tasker/bot"
	"tasker/config"
	"tasker/routes"
	"tasker/utils"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "tasker",
		Short:         "Personal and team to-do tracker with a Telegram front-end",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(botCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("tasker exited")
		utils.FlushSentry()
		os.Exit(1)
	}
}

// bootstrap loads configuration and sets up logging and error reporting.
func bootstrap() error {
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	utils.InitLogger(config.AppConfig.LogLevel, config.AppConfig.Environment)
	if err := utils.InitSentry(config.AppConfig.SentryDSN, config.AppConfig.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}
	return nil
}

func serveCmd() *cobra.Command {
	var autoMigrate bool
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(); err != nil {
				return err
			}
			defer utils.FlushSentry()

			if err := config.RequireAPI(); err != nil {
				return err
			}
			if err := config.ConnectDB(); err != nil {
				return err
			}
			defer config.CloseDB()

			if autoMigrate {
				if err := config.MigrateDB(config.DB); err != nil {
					return err
				}
			}

			opts := routes.OptionsFromConfig(config.AppConfig)
			app := routes.NewApp(opts)
			routes.SetupRoutes(app, config.DB, opts)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logrus.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
				errCh <- app.Listen(":" + config.AppConfig.ServerPort)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server stopped: %w", err)
			case <-ctx.Done():
			}

			logrus.Info("Shutting down server...")
			return app.ShutdownWithTimeout(shutdownTimeout)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply schema migrations before serving")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for in-flight requests on shutdown")
	return cmd
}

func botCmd() *cobra.Command {
	var backendTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(); err != nil {
				return err
			}
			defer utils.FlushSentry()

			if err := config.RequireBot(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessions, closeSessions, err := newSessionStore(ctx, config.AppConfig)
			if err != nil {
				return err
			}
			defer closeSessions()

			api, err := bot.Connect(ctx, config.AppConfig.BotToken)
			if err != nil {
				return err
			}

			client := bot.NewClient(config.AppConfig.BackendURL, config.AppConfig.APISecret, backendTimeout)
			handler := bot.NewHandler(client, bot.NewTelegramMessenger(api), sessions, config.Location())

			bot.New(api, handler).Run(ctx)
			return nil
		},
	}

	cmd.Flags().DurationVar(&backendTimeout, "backend-timeout", 10*time.Second, "timeout of a single API call")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(); err != nil {
				return err
			}
			if err := config.RequireAPI(); err != nil {
				return err
			}
			if err := config.ConnectDB(); err != nil {
				return err
			}
			defer config.CloseDB()

			return config.MigrateDB(config.DB)
		},
	}
}

// newSessionStore keeps bot conversations in redis when it is enabled and in
// process memory otherwise.
func newSessionStore(ctx context.Context, cfg config.Config) (bot.SessionStore, func(), error) {
	if !cfg.Redis.Enabled {
		logrus.Info("Bot sessions kept in memory")
		return bot.NewMemoryStore(cfg.BotSessionTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logrus.WithField("address", cfg.Redis.Address).Info("Bot sessions kept in redis")
	return bot.NewRedisStore(client, cfg.BotSessionTTL), func() { _ = client.Close() }, nil
}
