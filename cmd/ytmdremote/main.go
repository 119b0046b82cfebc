// Package main provides the ytmdremote CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"ytmdremote/internal/core"
	httpserver "ytmdremote/internal/http"
	"ytmdremote/internal/i18n"
	"ytmdremote/internal/player"
	"ytmdremote/internal/profile"
)

const (
	envPrefix         = "YTMDREMOTE"
	defaultServerHost = "0.0.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ytmdremote",
	Short: "ytmdremote - remote control for YouTube Music Desktop",
	Long: `ytmdremote drives a YouTube Music Desktop player through its local REST API.
It keeps a mirror of the remote queue, polls playback state, serves a remote-control
API with a websocket state stream, and stores per-user history and likes.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Serve only the profile storage API",
	RunE:  runStorage,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("player-host", core.DefaultPlayerHost, "Player API host")
	flags.Int("player-port", core.DefaultPlayerPort, "Player API port")
	flags.Duration("player-timeout", core.DefaultConfig().Player.RequestTimeout, "Player request timeout")
	flags.Int("search-cache-size", core.DefaultConfig().Player.SearchCacheSize, "Number of cached search queries")
	flags.String("storage-dir", "./data", "Directory holding one JSON profile per user")
	flags.String("storage-url", "", "Remote storage API URL (empty uses the local storage dir)")
	flags.Int("history-limit", core.DefaultHistoryLimit, "Maximum history entries per user")
	flags.Int("write-limit-per-minute", core.DefaultConfig().Storage.WriteLimitPerMinute, "Storage writes per user per minute (0 disables)")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultStoragePort, "HTTP server port")
	flags.Duration("poll-interval", core.DefaultConfig().Sync.PollInterval, "Playback poll interval")
	flags.Int("queue-refresh-every", core.DefaultConfig().Sync.QueueRefreshEvery, "Refresh the queue every N polls")
	flags.Int("settings-refresh-every", core.DefaultConfig().Sync.SettingsRefreshEvery, "Refresh volume, repeat and shuffle every N polls")
	flags.Int("queue-capacity", core.DefaultQueueCapacity, "Remote queue capacity")
	flags.String("play-now-mode", "next", "Where play-now inserts the track (next, end)")
	flags.Bool("keep-current-on-play", false, "Keep the playing entry when play-now trims the queue")
	flags.String("handle", "", "Active user handle")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Notification language (%s)", supportedLangs))
	flags.Int("recommendation-limit", core.DefaultRecommendationLimit, "Default number of recommendations")
	rootCmd.Flags().Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(storageCmd)
	addClientCommands(rootCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configurePlayer(cfg)
	configureStorage(cfg)
	configureServer(cfg)
	configureSync(cfg)
	configureEngine(cfg)
	configureApp(cfg)

	return cfg
}

func configurePlayer(cfg *core.Config) {
	cfg.Player.Host = viper.GetString("player-host")
	cfg.Player.Port = viper.GetInt("player-port")
	if timeout := viper.GetDuration("player-timeout"); timeout > 0 {
		cfg.Player.RequestTimeout = timeout
	}
	if size := viper.GetInt("search-cache-size"); size > 0 {
		cfg.Player.SearchCacheSize = size
	}
}

func configureStorage(cfg *core.Config) {
	cfg.Storage.DataDir = viper.GetString("storage-dir")
	cfg.Storage.URL = viper.GetString("storage-url")
	cfg.Storage.HistoryLimit = viper.GetInt("history-limit")
	cfg.Storage.WriteLimitPerMinute = viper.GetInt("write-limit-per-minute")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureSync(cfg *core.Config) {
	cfg.Sync.PollInterval = viper.GetDuration("poll-interval")
	cfg.Sync.QueueRefreshEvery = viper.GetInt("queue-refresh-every")
	cfg.Sync.SettingsRefreshEvery = viper.GetInt("settings-refresh-every")
}

func configureEngine(cfg *core.Config) {
	cfg.Engine.QueueCapacity = viper.GetInt("queue-capacity")
	cfg.Engine.KeepCurrentOnPlay = viper.GetBool("keep-current-on-play")

	mode, ok := core.ParseInsertMode(viper.GetString("play-now-mode"))
	if !ok {
		fmt.Fprintf(os.Stderr, "Warning: Unknown play-now mode '%s', using '%s'\n",
			viper.GetString("play-now-mode"), cfg.Engine.PlayNowInsertMode)
		return
	}
	cfg.Engine.PlayNowInsertMode = mode
}

func configureApp(cfg *core.Config) {
	cfg.App.Handle = strings.TrimSpace(viper.GetString("handle"))
	if limit := viper.GetInt("recommendation-limit"); limit > 0 {
		cfg.App.RecommendationLimit = limit
	}

	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "text") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

type services struct {
	player     *player.Client
	session    *core.Session
	httpServer *httpserver.Server
}

// newProfileStore returns the remote storage client when a URL is configured
// and the local file store otherwise. The file store is also returned as a
// backend so the server can expose it.
func newProfileStore() (core.ProfileStore, httpserver.ProfileBackend, error) {
	if config.Storage.URL != "" {
		client := profile.NewClient(config.Storage.URL, config.Player.RequestTimeout, logger.Named("profiles"))
		return client, nil, nil
	}
	store, err := profile.NewFileStore(config.Storage, logger.Named("profiles"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	return store, store, nil
}

func newPlayerClient() (*player.Client, error) {
	client, err := player.NewClient(config.Player.BaseURL(), config.Player, logger.Named("player"))
	if err != nil {
		return nil, fmt.Errorf("failed to create player client: %w", err)
	}
	return client, nil
}

func initializeServices() (*services, error) {
	playerClient, err := newPlayerClient()
	if err != nil {
		return nil, err
	}

	profiles, backend, err := newProfileStore()
	if err != nil {
		return nil, err
	}

	session := core.NewSession(config, playerClient, profiles, logger.Named("session"))
	httpServer := httpserver.NewServer(&config.Server, httpserver.Options{
		Profiles:            backend,
		Session:             session,
		Player:              playerClient,
		Target:              playerClient,
		PlayerConfig:        config.Player,
		WriteLimitPerMinute: config.Storage.WriteLimitPerMinute,
	}, logger.Named("http"))
	playerClient.SetErrorRecorder(httpServer.GetMetrics())

	return &services{
		player:     playerClient,
		session:    session,
		httpServer: httpServer,
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting ytmdremote",
		zap.String("player", config.Player.BaseURL()),
		zap.String("storage_dir", config.Storage.DataDir),
		zap.String("storage_url", config.Storage.URL),
		zap.String("handle", config.App.Handle),
		zap.String("language", config.App.Language))

	svcs, err := initializeServices()
	if err != nil {
		return err
	}

	return runServices(ctx, svcs)
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.session.Run(gCtx)
	})

	logger.Info("ytmdremote started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("ytmdremote stopped with error", zap.Error(err))
		return err
	}

	logger.Info("ytmdremote stopped gracefully")
	return nil
}

func runStorage(_ *cobra.Command, _ []string) error {
	if config.Storage.DataDir == "" {
		return fmt.Errorf("storage dir is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := profile.NewFileStore(config.Storage, logger.Named("profiles"))
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}

	server := httpserver.NewServer(&config.Server, httpserver.Options{
		Profiles:            store,
		WriteLimitPerMinute: config.Storage.WriteLimitPerMinute,
	}, logger.Named("http"))

	logger.Info("Starting storage API",
		zap.String("dir", config.Storage.DataDir),
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))
	return server.Start(ctx)
}
