package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"barberbill/backend/internal/cache"
	"barberbill/backend/internal/config"
	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/httpapi"
	"barberbill/backend/internal/logger"
	"barberbill/backend/internal/report"
	"barberbill/backend/internal/service"
	"barberbill/backend/internal/store"
	"barberbill/backend/internal/store/memory"
	pgstore "barberbill/backend/internal/store/postgres"
	"barberbill/backend/internal/xid"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	lg, err := logger.New(logger.Config{
		ServiceName: "barberbill",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.DatabaseAutoMigrate {
			if err := pg.Migrate(); err != nil {
				lg.Fatal("migrate database", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		lg.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.DevShopID)
		lg.Info("repository: in-memory")
	}

	cacheStore := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			lg.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			lg.Info("cache: redis")
		}
	} else {
		lg.Info("cache: noop")
	}

	reports := report.NewEngine(repo, cacheStore, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second, lg.Named("report"))
	svc := service.New(repo, reports, lg)
	identity := httpapi.NewIdentityVerifier(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience)
	api := httpapi.New(svc, identity, cfg.AllowedOrigin, lg)

	if cfg.DatabaseURL == "" && cfg.DevShopID != "" {
		token, expiresAt, err := identity.IssueToken(domain.Shop{ID: cfg.DevShopID, Name: cfg.DevShopName}, 24*time.Hour)
		if err != nil {
			lg.Warn("issue development token", zap.Error(err))
		} else {
			lg.Info("development access token",
				zap.String("shop_id", cfg.DevShopID),
				zap.String("token", token),
				zap.Time("expires_at", expiresAt),
			)
		}
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("barberbill backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			lg.Error("close error", zap.Error(err))
		}
	}

	lg.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DevShopID != "" && !xid.Valid(cfg.DevShopID) {
		return fmt.Errorf("DEV_SHOP_ID must be a UUID")
	}
	if cfg.DevShopID != "" && cfg.Environment == "production" {
		return fmt.Errorf("DEV_SHOP_ID must not be set in production")
	}
	return nil
}
