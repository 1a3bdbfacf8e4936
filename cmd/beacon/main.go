package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beacon/internal/auth"
	"beacon/internal/config"
	"beacon/internal/db"
	"beacon/internal/digest"
	httpx "beacon/internal/http"
	"beacon/internal/jobs"
	"beacon/internal/mail"
	"beacon/internal/project"
	"beacon/internal/subscription"
)

func main() {
	cfg, _ := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	defer func() { _ = closeLog() }()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	projectStore := &project.Store{DB: gdb}
	subStore := &subscription.Store{DB: gdb}
	jobStore := &jobs.Store{DB: gdb}
	stateStore := &jobs.StateStore{DB: gdb}

	var transport mail.Transport
	if cfg.SMTPHost != "" {
		t, err := mail.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromAddr, logger)
		if err != nil {
			log.Fatal(err)
		}
		transport = t
	} else {
		logger.Warn("SMTP not configured, email sends will be simulated")
		transport = &mail.NoopTransport{Log: logger}
	}

	renderer := &mail.Renderer{BaseURL: cfg.PublicBaseURL}

	computer := &digest.Computer{
		Content:   projectStore,
		Subs:      subStore,
		Queue:     jobStore,
		Transport: transport,
		Renderer:  renderer,
		Log:       logger,
	}

	scheduler := &digest.Scheduler{
		Jobs:          jobStore,
		State:         stateStore,
		Subs:          subStore,
		Computer:      computer,
		Log:           logger,
		TickInterval:  cfg.TickInterval,
		DrainBatch:    cfg.DrainBatchSize,
		DailyHourUTC:  cfg.DailyHourUTC,
		WeeklyHourUTC: cfg.WeeklyHourUTC,
		WeeklyDay:     cfg.WeeklyDay,
		CleanupHour:   cfg.CleanupHourUTC,
		RetentionDays: cfg.RetentionDays,
	}

	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:        gdb,
		JWT:       jwtSvc,
		Projects:  projectStore,
		Subs:      subStore,
		Jobs:      jobStore,
		Computer:  computer,
		Scheduler: scheduler,
		Transport: transport,
		Renderer:  renderer,
		Log:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
