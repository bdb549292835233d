package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/audit"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/catalog"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/config"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/credit"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/health"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/httpserver"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
	ledgerpg "github.com/Youngger9765/career-ios-backend-sub001/internal/ledger/postgres"
	ledgersql "github.com/Youngger9765/career-ios-backend-sub001/internal/ledger/sqlite"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/logging"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/metrics"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ratelimit"
)

func main() {
	// .env is optional; real config comes from the INI files and CREDITS_* vars.
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	const maxLogBytes = int64(100 * 1024 * 1024) // 100MB
	if cfg.LogFile != "" {
		rot, err := logging.NewRotatingWriter(cfg.LogFile, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs.
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[creditd] ")

	var store ledger.Store
	switch cfg.Backend {
	case "postgres":
		store, err = ledgerpg.New(cfg.PostgresDSN, cfg.PGMaxOpen, cfg.PGMaxIdle, cfg.PGConnLifetimeMin, cfg.PGConnIdleMin)
	default:
		store, err = ledgersql.New(cfg.LedgerPath)
	}
	if err != nil {
		log.Fatalf("open ledger store (%s): %v", cfg.Backend, err)
	}
	defer store.Close()
	log.Printf("ledger store ready: backend=%s", cfg.Backend)

	var packages *catalog.Catalog
	if cfg.PackagesFile != "" {
		packages, err = catalog.Load(cfg.PackagesFile)
		if err != nil {
			log.Fatalf("load package catalog: %v", err)
		}
		log.Printf("package catalog loaded: %d packages", len(packages.Packages()))
	}

	collector := metrics.NewCollector()

	service := credit.NewService(credit.Config{
		Store:    store,
		LockWait: cfg.LockWait,
		Logger:   log.New(log.Writer(), "[creditd/ledger] ", log.LstdFlags|log.Lmicroseconds),
		Metrics:  collector,
	})

	auditor := audit.New(audit.Config{
		Store:   store,
		Locks:   service.Locks(),
		Logger:  log.New(log.Writer(), "[creditd/audit] ", log.LstdFlags|log.Lmicroseconds),
		Metrics: collector,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AuditInterval > 0 {
		go auditor.Run(ctx, cfg.AuditInterval)
	}

	var (
		limiter    *ratelimit.Limiter
		redisStore *ratelimit.RedisStore
	)
	if cfg.RateLimitEnabled {
		var rlStore ratelimit.Store
		if cfg.RedisAddr != "" {
			redisStore, err = ratelimit.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				log.Fatalf("connect rate limit redis: %v", err)
			}
			rlStore = redisStore
			log.Printf("rate limiter using redis at %s", cfg.RedisAddr)
		}
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			Store:             rlStore,
			RequestsPerSecond: cfg.RateLimitPerSecond,
			BurstSize:         cfg.RateLimitBurst,
		})
		defer limiter.Close()
	}

	checker := health.New(2 * time.Second)
	checker.Register("ledger", "database", store.Ping)
	if redisStore != nil {
		checker.Register("redis", "cache", redisStore.Ping)
	}

	server := httpserver.New(httpserver.Config{
		Service:   service,
		Auditor:   auditor,
		Limiter:   limiter,
		Checker:   checker,
		Catalog:   packages,
		Metrics:   collector,
		AuthToken: cfg.AuthToken,
		Logger:    log.New(log.Writer(), "[creditd/http] ", log.LstdFlags|log.Lmicroseconds),
		LogLevel:  cfg.LogLevel,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s (env=%s)", cfg.ListenAddr, cfg.Environment)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
