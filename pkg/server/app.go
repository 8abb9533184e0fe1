package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danghungithp/chungquyen-VN/internal/usecase"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	xhttp "github.com/danghungithp/chungquyen-VN/pkg/http"
	pkgkafka "github.com/danghungithp/chungquyen-VN/pkg/kafka"
	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// App owns the long-running service: HTTP API, optional trade stream and
// optional Kafka trade consumer.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	collector  *usecase.TradeCollector // nil when the stream is disabled
	consumer   *pkgkafka.Consumer      // nil when consumption is disabled
	httpServer *xhttp.Server
}

// New creates an App. collector and consumer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		handler:   handler,
		collector: collector,
		consumer:  consumer,
	}
}

// Run starts every component and blocks until ctx ends or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler, a.log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("trade stream start failed", applogger.Error(err))
			return err
		}
		a.log.Info("trade stream started", applogger.Strings("symbols", a.cfg.Stream.Symbols))
	}

	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.TradesTopic))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops producers of work; sinks are closed by the caller's cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("trade stream stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
