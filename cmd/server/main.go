package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/zoofeed/internal/config"
	"github.com/mamadbah2/zoofeed/internal/domain/models"
	"github.com/mamadbah2/zoofeed/internal/metrics"
	"github.com/mamadbah2/zoofeed/internal/repository/memory"
	"github.com/mamadbah2/zoofeed/internal/repository/mongodb"
	"github.com/mamadbah2/zoofeed/internal/repository/sheets"
	"github.com/mamadbah2/zoofeed/internal/scheduler"
	"github.com/mamadbah2/zoofeed/internal/server/handlers"
	"github.com/mamadbah2/zoofeed/internal/server/router"
	"github.com/mamadbah2/zoofeed/internal/service/ledger"
	reportingsvc "github.com/mamadbah2/zoofeed/internal/service/reporting"
	"github.com/mamadbah2/zoofeed/internal/service/schedules"
	alertsvc "github.com/mamadbah2/zoofeed/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/zoofeed/pkg/clients/whatsapp"
	"github.com/mamadbah2/zoofeed/pkg/logger"
)

// backend is implemented by both the MongoDB and the in-memory store.
type backend interface {
	ledger.Store
	schedules.Repository
	schedules.AnimalDirectory
	reportingsvc.BatchArchive
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, closeStore := openBackend(cfg, baseLogger.Named("repo"))
	defer closeStore()

	stockLedger := ledger.NewLedger(store, baseLogger.Named("svc.ledger"))
	scheduleSvc := schedules.NewService(store, stockLedger, store, baseLogger.Named("svc.schedules"))
	runner := scheduler.NewRunner(scheduleSvc, stockLedger, store, cfg.Feeding.MaxConcurrency, baseLogger.Named("runner"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	var sheetRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetRepo = repo
	} else {
		baseLogger.Info("feeding log sheet not configured")
	}

	sinks := []scheduler.BatchSink{
		collector,
		reportingsvc.NewService(store, sheetRepo, baseLogger.Named("svc.reporting")),
	}

	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		sinks = append(sinks, alertsvc.NewAlertService(whatsClient, cfg.WhatsApp.AlertRecipient, baseLogger.Named("svc.alerts")))
		baseLogger.Info("whatsapp feeding alerts enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, feeding alerts disabled")
	}

	sched := scheduler.NewScheduler(cfg.Feeding, runner, baseLogger.Named("scheduler"), sinks...)
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	feedingHandler := handlers.NewFeedingHandler(scheduleSvc, stockLedger, sched, baseLogger.Named("handlers.feeding"))
	engine := router.New(feedingHandler, metrics.Handler(registry), baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openBackend(cfg *config.Config, log *zap.Logger) (backend, func()) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		seedDemoData(store)
		return store, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, log.Named("mongodb"))
	if err != nil {
		log.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure mongodb indexes", zap.Error(err))
	}

	return mongoRepo, func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			log.Error("failed to close mongodb connection", zap.Error(err))
		}
	}
}

func seedDemoData(store *memory.Store) {
	store.PutAnimal(models.Animal{ID: "lion-1", Name: "Kiara", Species: "Panthera leo"})
	store.PutAnimal(models.Animal{ID: "tapir-1", Name: "Tito", Species: "Tapirus bairdii"})
	_ = store.InsertFood(context.Background(), models.FoodItem{ID: "beef", Name: "Beef", Unit: "kg", CurrentStock: 120, MinimumStock: 20})
	_ = store.InsertFood(context.Background(), models.FoodItem{ID: "produce", Name: "Mixed produce", Unit: "kg", CurrentStock: 60, MinimumStock: 10})
}
