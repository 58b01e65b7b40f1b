package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewm4894/djangalytics/internal/cleanup"
	"github.com/andrewm4894/djangalytics/internal/config"
	"github.com/andrewm4894/djangalytics/internal/db"
	"github.com/andrewm4894/djangalytics/internal/enrich"
	"github.com/andrewm4894/djangalytics/internal/httpserver"
	"github.com/andrewm4894/djangalytics/internal/migrate"
	"github.com/andrewm4894/djangalytics/internal/queue"
	"github.com/andrewm4894/djangalytics/internal/ratelimit"
	"github.com/andrewm4894/djangalytics/internal/registry"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("config: %s", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.NewGorm(ctx, cfg.PostgresURL, db.Options{})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	migCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := migrate.AutoMigrate(migCtx, gdb); err != nil {
		cancel()
		log.Fatalf("db migrate: %v", err)
	}
	cancel()

	if cfg.SeedDefaultProject {
		seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		project, created, err := registry.EnsureDefaultProject(seedCtx, gdb)
		cancel()
		if err != nil {
			log.Fatalf("seed default project: %v", err)
		}
		if created {
			log.Printf("seeded default project %q (api_key=%s)", project.Slug, project.APIKey)
		}
	}

	// Counters live in Redis when configured, otherwise in Postgres.
	var limiter ratelimit.Limiter = ratelimit.NewGormLimiter(gdb)
	if cfg.RedisAddr != "" {
		rdb, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping: %v", err)
		}
		cancel()
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb)
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.NSQDAddress != "" {
		nsqPub, err := queue.NewNSQPublisher(cfg.NSQDAddress)
		if err != nil {
			log.Fatalf("nsq publisher: %v", err)
		}
		defer nsqPub.Stop()
		publisher = nsqPub
	}

	geoip, err := enrich.NewGeoIP(cfg.GeoIPCityMMDB)
	if err != nil {
		log.Fatalf("geoip: %v", err)
	}
	if geoip != nil {
		defer geoip.Close()
	}

	reaper := &cleanup.Worker{
		DB:        gdb,
		Interval:  cfg.CleanupInterval,
		Retention: cfg.CleanupRetention,
	}
	go reaper.Run(ctx)

	srv := httpserver.New(cfg, gdb, limiter, publisher, geoip)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("http listening on %s", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		log.Printf("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
