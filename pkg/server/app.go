package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DigitFlow/internal/controller"
	"DigitFlow/internal/domain/repository"
	"DigitFlow/internal/usecase"
	pkgch "DigitFlow/pkg/clickhouse"
	"DigitFlow/pkg/config"
	xhttp "DigitFlow/pkg/http"
	pkgkafka "DigitFlow/pkg/kafka"
	applogger "DigitFlow/pkg/logger"
	"DigitFlow/pkg/queue"
)

// App encapsulates the application lifecycle: market stream, controller,
// journal consumer, reconciliation queue, balance refresher and the HTTP
// control plane.
type App struct {
	cfg          *config.Config
	log          *applogger.Logger
	collector    *usecase.TickCollector
	ctrl         *controller.Controller
	broker       repository.Broker
	consumer     *pkgkafka.Consumer
	tickHandler  pkgkafka.MessageHandler
	tradeHandler pkgkafka.MessageHandler
	httpHandler  xhttp.Handler
	chClient     *pkgch.Client
	reconQueue   *queue.RedisQueue
	httpServer   *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TickCollector,
	ctrl *controller.Controller,
	broker repository.Broker,
	consumer *pkgkafka.Consumer,
	tickHandler pkgkafka.MessageHandler,
	tradeHandler pkgkafka.MessageHandler,
	httpHandler xhttp.Handler,
	chClient *pkgch.Client,
	reconQueue *queue.RedisQueue,
) *App {
	return &App{
		cfg:          cfg,
		log:          log,
		collector:    collector,
		ctrl:         ctrl,
		broker:       broker,
		consumer:     consumer,
		tickHandler:  tickHandler,
		tradeHandler: tradeHandler,
		httpHandler:  httpHandler,
		chClient:     chClient,
		reconQueue:   reconQueue,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Reconciliation queue first so ambiguous trades are never dropped.
	if a.reconQueue != nil {
		if err := a.reconQueue.Start(); err != nil {
			a.log.Error("reconciliation queue start failed", applogger.Error(err))
		}
	}

	// Market stream collector feeds the controller and the journal.
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("collector error", applogger.Error(err))
		}
	}()
	a.log.Info("collector started", applogger.String("symbol", a.cfg.Deriv.Symbol))

	// Journal consumer drains topics into history storage.
	if a.consumer != nil {
		a.consumer.RegisterHandler(a.tickHandler)
		a.consumer.RegisterHandler(a.tradeHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started",
			applogger.String("ticks_topic", a.tickHandler.Topic()),
			applogger.String("trades_topic", a.tradeHandler.Topic()),
		)
	}

	// Periodic authoritative balance refresh from the broker.
	go a.balanceRefresher(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// balanceRefresher keeps the controller's balance anchored to the broker.
// Settlement deltas between refreshes are applied locally by the controller.
func (a *App) balanceRefresher(ctx context.Context) {
	interval := a.cfg.Trading.BalanceRefresh
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if !a.collector.IsConnected() {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		balance, err := a.broker.Balance(callCtx)
		if err != nil {
			a.log.Warn("balance refresh failed", applogger.Error(err))
			return
		}
		a.ctrl.UpdateBalance(balance)
	}

	// initial refresh once the stream is up
	for i := 0; i < 30; i++ {
		if a.collector.IsConnected() {
			refresh()
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	// Stop trading before tearing down transports.
	a.ctrl.Stop()

	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.reconQueue != nil {
		if err := a.reconQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("reconciliation queue stop error", applogger.Error(err))
		}
	}

	// Flush aggregated logs before their producer goes away.
	a.log.RemoveCollector()

	// Close journal and storage via the processor.
	if proc := a.collector.Processor(); proc != nil {
		proc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
