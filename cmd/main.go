package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/robfig/cron/v3"

	"raffle/internal/config"
	"raffle/internal/handlers"
	"raffle/internal/hub"
	"raffle/internal/jobs"
	"raffle/internal/services"
	"raffle/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	restorePath := flag.String("restore", "", "seed the ledger from a .json.zst backup before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 1. Logging
	logOut := io.Discard
	if cfg.Log.File != "" {
		lf, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			logger.Fatalf("Failed to open log file: %v", err)
		}
		defer lf.Close()
		logOut = lf
	}
	defer logger.Init("raffle", cfg.Log.Verbose || cfg.Log.File == "", false, logOut).Close()

	// 2. Storage and ledger
	st, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := hub.New()
	go events.Run(ctx)

	lotteryService := services.NewLotteryService(services.NewLedger(), services.NewEngine(nil), st, events)

	if *restorePath != "" {
		participants, err := store.ReadBackup(*restorePath)
		if err != nil {
			logger.Fatalf("Failed to read backup: %v", err)
		}
		if err := lotteryService.Restore(ctx, participants); err != nil {
			logger.Fatalf("Failed to restore backup: %v", err)
		}
		logger.Infof("Restored %d participants from %s", len(participants), *restorePath)
	} else if err := lotteryService.Load(ctx); err != nil {
		logger.Fatalf("Failed to load ledger: %v", err)
	}

	// 3. Scheduled jobs
	c := cron.New()
	if err := jobs.Schedule(c, cfg.Backup.Schedule, jobs.NewBackupJob(lotteryService, cfg.Backup.Dir, cfg.Backup.Keep)); err != nil {
		logger.Fatalf("Invalid backup schedule %q: %v", cfg.Backup.Schedule, err)
	}
	if cfg.Drawing.IdleTimeout > 0 {
		if err := jobs.Schedule(c, cfg.Drawing.JanitorSchedule, jobs.NewSessionJanitorJob(lotteryService, cfg.Drawing.IdleTimeout)); err != nil {
			logger.Fatalf("Invalid janitor schedule %q: %v", cfg.Drawing.JanitorSchedule, err)
		}
	}
	c.Start()
	defer c.Stop()

	// 4. Router
	gin.SetMode(cfg.Server.GinMode)
	r := gin.Default()
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	handlers.NewHTTPHandler(lotteryService, events).RegisterRoutes(r)

	// 5. Run the server
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Server starting on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}
