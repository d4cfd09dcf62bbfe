package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/config"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/database"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "whiteboard-api",
		Short: "Collaborative whiteboard room service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded into the environment before configuration is read")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite path for the room ledger (empty keeps it in memory)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("directory.public_base_url"), "Base URL used to build room join links")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Origins accepted by CORS and the websocket upgrade")
	cmd.PersistentFlags().Int("max-elements", defaults.GetInt("canvas.max_elements"), "Per-room element ceiling (0 is unbounded)")
	cmd.PersistentFlags().Duration("unclaimed-ttl", defaults.GetDuration("rooms.unclaimed_ttl"), "Destroy rooms nobody joined within this age (0 disables)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "directory.public_base_url", "public-base-url")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "canvas.max_elements", "max-elements")
	bindFlag(cmd, "rooms.unclaimed_ttl", "unclaimed-ttl")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ledger, db, err := openLedger(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	hub := realtime.NewHub(logger)

	registry, err := rooms.NewRegistry(rooms.RegistryConfig{
		Ledger:      ledger,
		Publisher:   hub,
		Clock:       time.Now,
		RoomIDs:     rooms.NewRoomIDProvider(),
		ElementIDs:  canvas.NewUUIDProvider(),
		MaxElements: appConfig.MaxElements,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer registry.Close()

	eventRouter, err := realtime.NewRouter(realtime.RouterConfig{
		Registry: registry,
		Hub:      hub,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	transport, err := realtime.NewTransport(realtime.TransportConfig{
		Router:            eventRouter,
		Logger:            logger,
		AllowedOrigins:    appConfig.AllowedOrigins,
		SendBuffer:        appConfig.Realtime.SendBuffer,
		MaxMessageBytes:   appConfig.Realtime.MaxMessageBytes,
		MessagesPerSecond: appConfig.Realtime.MessagesPerSecond,
		MessageBurst:      appConfig.Realtime.MessageBurst,
		WriteWait:         appConfig.Realtime.WriteWait,
		PongWait:          appConfig.Realtime.PongWait,
		PingInterval:      appConfig.Realtime.PingInterval,
	})
	if err != nil {
		return err
	}

	directoryService, err := directory.NewService(directory.ServiceConfig{
		Registry:      registry,
		PublicBaseURL: appConfig.PublicBaseURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Directory:      directoryService,
		Registry:       registry,
		Realtime:       eventRouter,
		WebSocket:      transport,
		AllowedOrigins: appConfig.AllowedOrigins,
		Clock:          time.Now,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if appConfig.UnclaimedTTL > 0 {
		go sweepUnclaimed(signalCtx, registry, appConfig.UnclaimedTTL, appConfig.SweepInterval)
	}

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// openLedger falls back to an in-memory ledger when no database path is configured.
func openLedger(path string, logger *zap.Logger) (rooms.IDLedger, *gorm.DB, error) {
	if path == "" {
		logger.Info("room ledger kept in memory")
		return rooms.NewMemoryLedger(), nil, nil
	}
	db, err := database.OpenSQLite(path, logger)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := rooms.NewGormLedger(db, logger)
	if err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return ledger, db, nil
}

func sweepUnclaimed(ctx context.Context, registry *rooms.Registry, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.SweepUnclaimed(maxAge)
		}
	}
}
