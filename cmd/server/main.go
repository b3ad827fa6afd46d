package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/mamadbah2/fournil/internal/config"
	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/repository"
	"github.com/mamadbah2/fournil/internal/repository/gormstore"
	"github.com/mamadbah2/fournil/internal/repository/mongodb"
	"github.com/mamadbah2/fournil/internal/repository/sheets"
	"github.com/mamadbah2/fournil/internal/scheduler"
	"github.com/mamadbah2/fournil/internal/server/handlers"
	"github.com/mamadbah2/fournil/internal/server/router"
	alertsvc "github.com/mamadbah2/fournil/internal/service/alerts"
	batchsvc "github.com/mamadbah2/fournil/internal/service/batches"
	inventorysvc "github.com/mamadbah2/fournil/internal/service/inventory"
	ledgersvc "github.com/mamadbah2/fournil/internal/service/ledger"
	reportingsvc "github.com/mamadbah2/fournil/internal/service/reporting"
	"github.com/mamadbah2/fournil/internal/shift"
	whatsappclient "github.com/mamadbah2/fournil/pkg/clients/whatsapp"
	"github.com/mamadbah2/fournil/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)
	decimal.MarshalJSONWithoutQuotes = true

	resolver, err := shift.LoadResolver(cfg.Server.Timezone)
	if err != nil {
		baseLogger.Fatal("failed to load timezone", zap.Error(err))
	}

	store, err := openStore(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	inventorySvc := inventorysvc.NewService(store, resolver, logger.Named(baseLogger, "svc.inventory"))
	ledgerSvc := ledgersvc.NewService(store, resolver, logger.Named(baseLogger, "svc.ledger"))
	batchSvc := batchsvc.NewService(store, store, cfg.Batches.DefaultDurationMinutes, logger.Named(baseLogger, "svc.batches"))
	reportingSvc := reportingsvc.NewService(store, inventorySvc, resolver, logger.Named(baseLogger, "svc.reporting"))

	if cfg.Sheets.Enabled() {
		sheet, err := sheets.NewGoogleSheet(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets client", zap.Error(err))
		}
		reportingSvc.SetMirror(sheets.NewReportMirror(sheet, logger.Named(baseLogger, "repo.sheets")))
		baseLogger.Info("shift reports mirrored to google sheets")
	} else {
		baseLogger.Warn("google sheets not configured, report mirror disabled")
	}

	var notifier alertsvc.Notifier = alertsvc.NopNotifier{Logger: logger.Named(baseLogger, "svc.alerts")}
	if cfg.WhatsApp.Enabled() {
		notifier = alertsvc.NewWhatsAppNotifier(whatsappclient.NewClient(cfg.WhatsApp))
		baseLogger.Info("whatsapp stock alerts enabled")
	} else {
		baseLogger.Warn("whatsapp not configured, stock alerts disabled")
	}
	alerts := alertsvc.NewService(notifier, cfg.WhatsApp.AlertRecipient, language.French, logger.Named(baseLogger, "svc.alerts"))

	poller := inventorysvc.NewPoller(inventorySvc, func() []inventorysvc.Query {
		day := resolver.Today(time.Now())
		return []inventorysvc.Query{
			{Shift: models.ShiftMorning, Day: day},
			{Shift: models.ShiftNight, Day: day},
		}
	}, cfg.Inventory.PollInterval, logger.Named(baseLogger, "svc.inventory.poller"))
	poller.Subscribe(alerts.Observe)
	ledgerSvc.SetChangeHook(poller.Refresh)
	reportingSvc.SetClearHook(poller.Refresh)

	sched := scheduler.NewScheduler(batchSvc, cfg.Batches.TickInterval, resolver.Location(), logger.Named(baseLogger, "scheduler"))
	batchSvc.SetActivationHook(sched.Wake)

	engine := router.New(router.Handlers{
		Ledger:    handlers.NewLedgerHandler(ledgerSvc, logger.Named(baseLogger, "handlers.ledger")),
		Inventory: handlers.NewInventoryHandler(inventorySvc, ledgerSvc, logger.Named(baseLogger, "handlers.inventory")),
		Batches:   handlers.NewBatchHandler(batchSvc, logger.Named(baseLogger, "handlers.batches")),
		Reports:   handlers.NewReportHandler(reportingSvc, logger.Named(baseLogger, "handlers.reports")),
	}, logger.Named(baseLogger, "router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	go poller.Run(ctx)

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

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		return gormstore.Open(cfg.Store.Driver, cfg.Store.DSN, logger.Named(log, "repo.sql"))
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		return mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named(log, "repo.mongodb"))
	}
}
