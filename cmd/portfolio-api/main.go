package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/Clement3205902/Clement/internal/chat"
	"github.com/Clement3205902/Clement/internal/comments"
	"github.com/Clement3205902/Clement/internal/config"
	"github.com/Clement3205902/Clement/internal/database"
	"github.com/Clement3205902/Clement/internal/firebasestore"
	"github.com/Clement3205902/Clement/internal/logging"
	"github.com/Clement3205902/Clement/internal/metrics"
	"github.com/Clement3205902/Clement/internal/server"
	"github.com/Clement3205902/Clement/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portfolio-api",
		Short: "Portfolio backend: comment feed, chat proxy and sign-in",
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
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma-separated CORS origins")
	cmd.PersistentFlags().String("store-driver", defaults.GetString("store.driver"), "Document store (sqlite, firestore, none)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "store.driver", "store-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadEnvFile(envFile, envFile != ".env"); err != nil {
		return err
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

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	stores, err := openStores(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	gateway, err := buildGateway(appConfig, logger)
	if err != nil {
		return err
	}

	var engine *comments.Engine
	if stores.comments != nil {
		engine, err = comments.NewEngine(comments.EngineConfig{
			Store:   stores.comments,
			Metrics: collector,
			Logger:  logger.Named("comments"),
		})
		if err != nil {
			return err
		}
	}

	var profiles *users.Service
	if stores.profiles != nil {
		profiles, err = users.NewService(users.ServiceConfig{
			Store:  stores.profiles,
			Logger: logger.Named("users"),
		})
		if err != nil {
			return err
		}
		changes, cancelChanges := gateway.OnSessionChange(signalCtx)
		defer cancelChanges()
		go profiles.Track(signalCtx, changes)
	}

	proxy, err := buildChatProxy(appConfig, collector, logger)
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Gateway:        gateway,
		Comments:       engine,
		Chat:           proxy,
		Metrics:        collector,
		Gatherer:       registry,
		AllowedOrigins: appConfig.AllowedOrigins,
		CookieName:     appConfig.Session.CookieName,
		CookieSecure:   appConfig.Session.CookieSecure,
		Logger:         logger.Named("http"),
	}
	if profiles != nil {
		deps.ChatActivity = profiles
	}
	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_driver", appConfig.StoreDriver),
			zap.Bool("auth_enabled", gateway.Enabled()),
			zap.Bool("comments_enabled", engine != nil),
			zap.Bool("chat_enabled", proxy.Enabled()))
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

type documentStores struct {
	comments comments.Store
	profiles users.Store
	close    func()
}

// openStores opens the configured document store. A store that cannot be reached is
// logged and left nil so the remaining features keep serving.
func openStores(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (documentStores, error) {
	stores := documentStores{close: func() {}}

	switch appConfig.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger.Named("database"))
		if err != nil {
			return stores, err
		}
		stores.close = func() {
			if err := database.Close(db); err != nil {
				logger.Warn("failed to close database", zap.Error(err))
			}
		}
		commentStore, err := database.NewCommentStore(database.CommentStoreConfig{
			Database: db,
			Logger:   logger.Named("comment_store"),
		})
		if err != nil {
			return stores, err
		}
		profileStore, err := database.NewProfileStore(db)
		if err != nil {
			return stores, err
		}
		stores.comments = commentStore
		stores.profiles = profileStore

	case config.StoreDriverFirestore:
		client, err := firebasestore.NewClient(ctx, firebasestore.ClientConfig{
			ProjectID:       appConfig.Firebase.ProjectID,
			CredentialsFile: appConfig.Firebase.CredentialsFile,
		})
		if err != nil {
			logger.Warn("firestore unavailable; comments and profiles disabled", zap.Error(err))
			return stores, nil
		}
		stores.close = func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close firestore client", zap.Error(err))
			}
		}
		commentStore, err := firebasestore.NewCommentStore(client, logger.Named("comment_store"))
		if err != nil {
			return stores, err
		}
		profileStore, err := firebasestore.NewProfileStore(client)
		if err != nil {
			return stores, err
		}
		stores.comments = commentStore
		stores.profiles = profileStore

	case config.StoreDriverNone:
		logger.Warn("no document store configured; comments and profiles disabled")
	}

	return stores, nil
}

// buildGateway wires Firebase sign-in when it is configured and returns a disabled gateway
// otherwise.
func buildGateway(appConfig config.AppConfig, logger *zap.Logger) (*auth.Gateway, error) {
	gatewayLogger := logger.Named("auth")
	if !appConfig.Firebase.Configured() {
		return auth.NewGateway(auth.GatewayConfig{Logger: gatewayLogger}), nil
	}

	requestURI := ""
	if domain := strings.TrimSpace(appConfig.Firebase.AuthDomain); domain != "" {
		requestURI = "https://" + strings.TrimPrefix(domain, "https://")
	}
	identity, err := auth.NewIdentityToolkit(auth.IdentityToolkitConfig{
		APIKey:     appConfig.Firebase.APIKey,
		BaseURL:    appConfig.Firebase.IdentityToolkitURL,
		RequestURI: requestURI,
	})
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewFirebaseVerifier(auth.FirebaseVerifierConfig{
		ProjectID: appConfig.Firebase.ProjectID,
		JWKSURL:   appConfig.Firebase.JWKSURL,
		Logger:    gatewayLogger,
	})
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewSessionTokens(auth.SessionTokenConfig{
		SigningSecret: []byte(appConfig.Session.SigningSecret),
		CookieName:    appConfig.Session.CookieName,
		TTL:           appConfig.Session.TTL,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewGateway(auth.GatewayConfig{
		Identity: identity,
		Verifier: verifier,
		Tokens:   tokens,
		Logger:   gatewayLogger,
	}), nil
}

func buildChatProxy(appConfig config.AppConfig, collector *metrics.Collector, logger *zap.Logger) (*chat.Proxy, error) {
	chatLogger := logger.Named("chat")
	persona := ""
	if appConfig.Chat.PersonaFile != "" {
		loaded, err := chat.LoadPersona(appConfig.Chat.PersonaFile)
		if err != nil {
			return nil, err
		}
		persona = loaded
	}

	cfg := chat.ProxyConfig{
		Persona:      persona,
		OwnerName:    appConfig.Chat.OwnerName,
		HistoryLimit: appConfig.Chat.HistoryLimit,
		Metrics:      collector,
		Logger:       chatLogger,
	}
	if appConfig.ChatEnabled() {
		completer, err := chat.NewOpenAICompleter(chat.OpenAIConfig{
			APIKey:      appConfig.Chat.APIKey,
			BaseURL:     appConfig.Chat.BaseURL,
			Model:       appConfig.Chat.Model,
			MaxTokens:   appConfig.Chat.MaxTokens,
			Temperature: appConfig.Chat.Temperature,
			Timeout:     appConfig.Chat.Timeout,
		})
		if err != nil {
			return nil, err
		}
		cfg.Completer = completer
	} else {
		chatLogger.Warn("chat disabled: no API key configured")
	}
	return chat.NewProxy(cfg), nil
}
