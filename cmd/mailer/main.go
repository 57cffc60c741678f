package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/luisf-nog/h2link-mailer/internal/api"
	"github.com/luisf-nog/h2link-mailer/internal/cache"
	"github.com/luisf-nog/h2link-mailer/internal/client"
	"github.com/luisf-nog/h2link-mailer/internal/config"
	"github.com/luisf-nog/h2link-mailer/internal/repo"
	"github.com/luisf-nog/h2link-mailer/internal/scheduler"
	"github.com/luisf-nog/h2link-mailer/internal/service"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.LoadAll()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Error("opening postgres failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}
	cancel()

	var history cache.SendHistory
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		history = cache.NewRedisHistory(rdb, cfg.Redis.TTL)
	}

	queueRepo := repo.NewPostgresQueueRepo(db)
	profileRepo := repo.NewPostgresProfileRepo(db)

	gate := service.NewGate(profileRepo, log)
	processor := service.NewProcessor(service.ProcessorDeps{
		Queue:         queueRepo,
		Profiles:      profileRepo,
		Templates:     repo.NewPostgresTemplateRepo(db),
		Credentials:   repo.NewPostgresCredentialRepo(db),
		Jobs:          repo.NewPostgresJobRepo(db),
		Gate:          gate,
		History:       history,
		Resumes:       client.NewResumeFetcher(),
		Log:           log,
		PixelBaseURL:  cfg.Tracking.PixelBaseURL,
		CronPerUser:   cfg.Queue.CronPerUser,
		CronUserLimit: cfg.Queue.CronUserLimit,
		StaleAfter:    cfg.Queue.StaleAfter,
	})

	// The ticker exists even when disabled so the scheduler endpoints can
	// switch it on at runtime.
	sweepInterval := cfg.Scheduler.Interval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	sched, err := scheduler.New(sweepInterval, func(ctx context.Context) {
		res, err := processor.ProcessCron(ctx)
		if err != nil {
			log.Error("scheduled sweep failed", "error", err)
			return
		}
		log.Info("scheduled sweep finished",
			"processed", res.Processed, "sent", res.Sent,
			"failed", res.Failed, "users", res.UsersTouched)
	})
	if err != nil {
		log.Error("creating scheduler failed", "error", err)
		os.Exit(1)
	}
	if cfg.Scheduler.Interval > 0 {
		sched.Start()
	}
	defer sched.Stop()

	handler := api.NewHandler(processor, profileRepo, repo.NewPostgresSettingsRepo(db),
		sched, log, []byte(cfg.Auth.JWTSecret), cfg.Queue.UserBatchSize)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mailer listening",
			"addr", cfg.Server.Address,
			"scheduler", cfg.Scheduler.Interval > 0,
			"redis", cfg.Redis.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
}
