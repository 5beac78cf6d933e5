// ABOUTME: The serve command: wires config, store, challenge cache, and HTTP server
// ABOUTME: Handles graceful shutdown and background token cleanup

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/tomepile/tomepile/internal/api"
	"github.com/tomepile/tomepile/internal/auth"
	"github.com/tomepile/tomepile/internal/challenge"
	"github.com/tomepile/tomepile/internal/config"
	"github.com/tomepile/tomepile/internal/passkey"
	"github.com/tomepile/tomepile/internal/store"
)

const (
	challengeTTL         = 5 * time.Minute
	tokenCleanupInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
)

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("RP ID:    %s\n", cfg.WebAuthn.RPID)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	challenges := newChallengeCache(cfg)
	defer func() { _ = challenges.Close() }()

	issuer := auth.NewJWTIssuer([]byte(cfg.Session.Secret), cfg.Session.TokenLifetime)

	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = cfg.WebAuthn.RPOrigin
	}

	service, err := passkey.New(passkey.Options{
		RPID:          cfg.WebAuthn.RPID,
		RPOrigin:      cfg.WebAuthn.RPOrigin,
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		BaseURL:       baseURL,
	}, st, challenges, issuer)
	if err != nil {
		return fmt.Errorf("creating passkey service: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.New(service, st, issuer, cfg.Server.AllowedOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepExpiredTokens(ctx, st, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting tomepile", "http_addr", cfg.Server.HTTPAddr, "rp_id", cfg.WebAuthn.RPID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// newChallengeCache picks Redis when configured, in-memory otherwise.
func newChallengeCache(cfg *config.Config) challenge.Cache {
	if cfg.Redis.Addr == "" {
		return challenge.NewMemoryCache(challengeTTL)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return challenge.NewRedisCache(rdb, challengeTTL)
}

// sweepExpiredTokens periodically deletes expired, unused invitation and
// setup tokens. Consumed tokens are kept for audit.
func sweepExpiredTokens(ctx context.Context, st store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.DeleteExpiredTokens(ctx); err != nil {
				logger.Warn("token cleanup failed", "error", err)
			}
		}
	}
}
