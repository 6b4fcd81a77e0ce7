package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/haontuhcmut/lab-services/internal/auth"
	"github.com/haontuhcmut/lab-services/internal/blocklist"
	"github.com/haontuhcmut/lab-services/internal/config"
	"github.com/haontuhcmut/lab-services/internal/detect"
	"github.com/haontuhcmut/lab-services/internal/httpapi"
	"github.com/haontuhcmut/lab-services/internal/mailer"
	"github.com/haontuhcmut/lab-services/internal/obs"
	"github.com/haontuhcmut/lab-services/internal/store"
	"github.com/haontuhcmut/lab-services/internal/store/pg"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db         *sql.DB
		users      store.UserStore
		detections store.DetectionStore
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		pgStore := pg.New(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		users = pgStore.Users
		detections = pgStore.Detections
	} else {
		log.Println("DATABASE_URL not set, using in-memory store")
		users = store.NewMemoryUsers()
		detections = store.NewMemoryDetections()
	}

	// Revocation blocklist and mail broker share one Redis client.
	var (
		revoked   blocklist.Store
		mailQueue mailer.Queue
	)
	sender := buildSender(cfg)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		defer client.Close()

		revoked = blocklist.NewRedisFromClient(client)
		mailQueue = mailer.NewRedisQueue(client)
		go mailer.NewWorker(client, sender).Run(ctx)
	} else {
		log.Println("REDIS_URL not set, using in-memory blocklist")
		revoked = blocklist.NewMemory()
		mailQueue = &mailer.InProcess{Sender: sender}
	}

	codec, err := auth.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessDefaultTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	action := auth.NewActionCodec(cfg.JWTSecret, auth.SaltEmailActions)

	authSvc := auth.NewService(users, revoked, codec, action, cfg.Domain,
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithActionMaxAge(cfg.ActionTokenMaxAge),
		auth.WithMailer(mailQueue),
	)

	if err := authSvc.BootstrapAdmin(ctx, auth.RegisterInput{
		FirstName: cfg.AdminFirstName,
		LastName:  cfg.AdminLastName,
		Username:  cfg.AdminUsername,
		Email:     cfg.AdminEmail,
		Password:  cfg.AdminPassword,
	}); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	detector := detect.NewClient(cfg.ModelURL, cfg.ModelHealthAddr)

	api := httpapi.New(authSvc, detections, detector, httpapi.ReadyProbe{DB: db, Model: detector}, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lab-services %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func buildSender(cfg config.Config) mailer.Sender {
	if cfg.MailServer == "" {
		return mailer.LogSender{}
	}
	return &mailer.SMTPSender{
		Host:     cfg.MailServer,
		Port:     cfg.MailPort,
		Username: cfg.MailUsername,
		Password: cfg.MailPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}
}
