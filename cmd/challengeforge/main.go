package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/challengeforge/backend/internal/auth"
	"github.com/challengeforge/backend/internal/callback"
	"github.com/challengeforge/backend/internal/challenges"
	"github.com/challengeforge/backend/internal/config"
	"github.com/challengeforge/backend/internal/database"
	"github.com/challengeforge/backend/internal/dispatcher"
	"github.com/challengeforge/backend/internal/gateway"
	"github.com/challengeforge/backend/internal/logging"
	"github.com/challengeforge/backend/internal/ratelimit"
	"github.com/challengeforge/backend/internal/saved"
	"github.com/challengeforge/backend/internal/users"
	"github.com/challengeforge/backend/internal/votes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile      string
	tokenSubject string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "challengeforge",
		Short: "ChallengeForge bot backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a gateway bearer token for a transport deployment",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueToken(cmd)
		},
	}
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "transport", "Subject the token identifies")
	rootCmd.AddCommand(tokenCmd)

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
	cmd.PersistentFlags().String("callback-secret", "", "Callback token signing secret (empty selects open mode)")
	cmd.PersistentFlags().String("gateway-signing-secret", "", "Gateway bearer token signing secret")
	cmd.PersistentFlags().Int("page-size", defaults.GetInt("page.size"), "Entries per list page")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "callback.secret", "callback-secret")
	bindFlag(cmd, "gateway.signing_secret", "gateway-signing-secret")
	bindFlag(cmd, "page.size", "page-size")
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

func issueToken(cmd *cobra.Command) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.GatewaySigningSecret),
		TokenTTL:      time.Duration(appConfig.GatewayTokenTTLMinutes) * time.Minute,
	})

	token, err := issuer.IssueToken(tokenSubject)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runServer(ctx context.Context) error {
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

	codec := callback.NewCodec([]byte(appConfig.CallbackSecret))
	if !codec.Signed() {
		logger.Warn("callback secret not configured, tokens are unsigned and spoofable")
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	voteService, err := votes.NewService(votes.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	savedService, err := saved.NewService(saved.ServiceConfig{
		Database:      db,
		NoteMaxLength: appConfig.NoteMaxLength,
	})
	if err != nil {
		return err
	}
	catalogue, err := challenges.NewService(challenges.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	generator, err := challenges.NewComposer(challenges.ComposerConfig{Catalogue: catalogue})
	if err != nil {
		return err
	}

	dispatcherService, err := dispatcher.NewService(dispatcher.ServiceConfig{
		Codec:      codec,
		Users:      userService,
		Votes:      voteService,
		Saved:      savedService,
		Catalogue:  catalogue,
		Generator:  generator,
		PageSize:   appConfig.PageSize,
		PendingTTL: time.Duration(appConfig.PendingTTLMinutes) * time.Minute,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(ratelimit.LimiterConfig{
		Window:    time.Duration(appConfig.RateWindowSeconds) * time.Second,
		MaxEvents: appConfig.RateMaxEvents,
	})

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.GatewaySigningSecret),
		TokenTTL:      time.Duration(appConfig.GatewayTokenTTLMinutes) * time.Minute,
	})

	handler, err := gateway.NewHTTPHandler(gateway.Dependencies{
		TokenValidator: tokenManager,
		Dispatcher:     dispatcherService,
		Limiter:        limiter,
		Logger:         logger,
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
