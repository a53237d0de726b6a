package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authcore.dev/internal/auth"
	"authcore.dev/internal/cache"
	"authcore.dev/internal/config"
	"authcore.dev/internal/httpapi"
	"authcore.dev/internal/mail"
	"authcore.dev/internal/obs"
	"authcore.dev/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	// Storage: Postgres when a DSN is configured, otherwise the in-memory
	// store with the seeded role catalog (dev mode).
	var (
		store   auth.Store
		probe   httpapi.ReadyProbe
		cleanup []func()
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		cleanup = append(cleanup, func() { _ = pgStore.Close() })
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		mem := auth.NewMemoryStore()
		if err := mem.SeedRBAC(ctx); err != nil {
			log.Fatalf("seed rbac: %v", err)
		}
		store = mem
		log.Print("AUTHCORE_PG_DSN not set, using in-memory store")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	opts := []auth.ServiceOption{auth.WithResetTTL(cfg.ResetTTL)}
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		cleanup = append(cleanup, func() { _ = rdb.Close() })
		opts = append(opts, auth.WithSessionGateway(auth.NewSessionGateway(rdb, cfg.SessionTTL)))
	} else {
		opts = append(opts, auth.WithSessionGateway(auth.NewSessionGateway(cache.NewMemory(), cfg.SessionTTL)))
	}

	svc, err := auth.NewService(store, tokens, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var mailer mail.Sender = mail.LogSender{}
	smtpCfg := mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}
	if smtpCfg.Configured() {
		mailer = mail.NewSMTPSender(smtpCfg)
	}

	api := httpapi.New(svc, mailer, cfg.BaseURL, probe, version)
	handler := httpapi.RequestID(
		httpapi.LoggingJSON(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), cfg.RateLimitBurst, cfg.RateLimitPerSecond),
						1<<20)))))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	for _, fn := range cleanup {
		fn()
	}
	log.Println("Stopped")
}
