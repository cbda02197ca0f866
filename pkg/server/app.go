package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RevSight/internal/services/drift"
	pkgch "RevSight/pkg/clickhouse"
	"RevSight/pkg/config"
	xhttp "RevSight/pkg/http"
	pkgkafka "RevSight/pkg/kafka"
	applogger "RevSight/pkg/logger"
	"RevSight/pkg/queue"
)

// App encapsulates the application lifecycle: the inference-event consumer,
// the drift scheduler, the retrain queue and the HTTP trigger surface.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	consumer   *pkgkafka.Consumer
	inference  pkgkafka.MessageHandler
	scheduler  *drift.Scheduler
	retrain    *queue.RedisQueue
	handler    xhttp.Handler
	chClient   *pkgch.Client
	producer   *pkgkafka.Producer
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	inference pkgkafka.MessageHandler,
	scheduler *drift.Scheduler,
	retrain *queue.RedisQueue,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		consumer:  consumer,
		inference: inference,
		scheduler: scheduler,
		retrain:   retrain,
		handler:   handler,
		chClient:  chClient,
		producer:  producer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.consumer != nil && a.inference != nil {
		a.consumer.RegisterHandler(a.inference)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("inference consumer started", applogger.String("topic", a.inference.Topic()))
	}

	if a.retrain != nil {
		if err := a.retrain.Start(); err != nil {
			a.log.Error("retrain queue start error", applogger.Error(err))
			return err
		}
	}

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

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

// shutdown gracefully stops all services. Producers stay up until the
// scheduler and queue drain so in-flight checks can still publish.
func (a *App) shutdown(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.retrain != nil {
		if err := a.retrain.Stop(shutdownCtx); err != nil {
			a.log.Warn("retrain queue stop error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	a.log.RemoveCollector()
	return nil
}
