package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/httpapi"
	"classattend/internal/httpmiddleware"
	"classattend/internal/identity"
	"classattend/internal/logger"
	"classattend/internal/qr"
	"classattend/internal/queue"
	"classattend/internal/store"
	"classattend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg, "classattend-api")
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runHTTP(ctx, cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(ctx context.Context, cfg config.App, log *zap.Logger) error {
	health := map[string]httpapi.HealthCheck{}

	var st attendance.Store
	if cfg.StoreBackend == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		st = attendance.NewMemoryStore()
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			log.Info("schema applied")
		}
		st = attendance.NewRepository(db.Client)
		health["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if usesRedis(cfg) {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	var counters worker.Counters
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		counters = worker.NewMemoryCounters()
		go func() {
			if err := worker.New(q, counters, log.Named("worker")).Run(ctx); err != nil {
				log.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
		counters = worker.NewRedisCounters(redisClient.Client, 0)
	}

	var tokens qr.TokenStore
	if cfg.QRTokenBackend == "memory" {
		tokens = qr.NewMemoryTokens()
	} else {
		tokens = qr.NewRedisTokens(redisClient.Client, "")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RateLimitBackend == "redis" {
			limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		} else {
			limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		}
	}

	var provider identity.Provider
	if cfg.AuthBackend == "supabase" {
		gotrue := identity.NewGoTrue(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		provider = gotrue
		health["auth"] = func(ctx context.Context) bool { return gotrue.Health(ctx) == nil }
	} else {
		provider = identity.NewLocal(st)
	}

	var avatars httpapi.AvatarUploader
	if cfg.CloudinaryEnabled() {
		avatars = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Info("cloudinary not configured, avatar uploads disabled")
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Config: cfg,
		Log:    log,
		Attendance: attendance.NewService(st, attendance.Options{
			Window:   cfg.AttendanceWindow,
			TokenTTL: cfg.QRTokenTTL,
			Tokens:   tokens,
			Events:   q,
			Counters: counters,
			Logger:   log.Named("attendance"),
		}),
		Identity: identity.NewService(provider, st, identity.Options{
			Retries: cfg.SignupRetries,
			Backoff: cfg.SignupBackoff,
			Logger:  log.Named("identity"),
		}),
		Tokens:  auth.NewManager(st, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Avatars: avatars,
		Limiter: limiter,
		Health:  health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func usesRedis(cfg config.App) bool {
	return cfg.QueueBackend != "memory" || cfg.QRTokenBackend != "memory" ||
		(cfg.RateLimitPerMin > 0 && cfg.RateLimitBackend == "redis")
}
