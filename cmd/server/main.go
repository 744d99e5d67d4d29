package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/config"
	"github.com/kiwari-pos/floorops/internal/events"
	"github.com/kiwari-pos/floorops/internal/logger"
	"github.com/kiwari-pos/floorops/internal/router"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/store/driver"
	"github.com/kiwari-pos/floorops/internal/ws"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := driver.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	publishers := events.Fanout{hub}

	if cfg.RabbitMQURL != "" {
		mq, err := events.NewRabbitMQ(cfg.RabbitMQURL, "")
		if err != nil {
			if cfg.Env == "production" {
				log.Fatal("failed to connect to rabbitmq", zap.Error(err))
			}
			log.Warn("rabbitmq not available, continuing without broker events", zap.Error(err))
		} else {
			defer mq.Close()
			publishers = append(publishers, mq)
			log.Info("rabbitmq publisher connected")
		}
	}

	if cfg.NATSURL != "" {
		nc, err := events.NewNATS(cfg.NATSURL)
		if err != nil {
			if cfg.Env == "production" {
				log.Fatal("failed to connect to nats", zap.Error(err))
			}
			log.Warn("nats not available, continuing without nats events", zap.Error(err))
		} else {
			defer nc.Close()
			publishers = append(publishers, nc)
			log.Info("nats publisher connected")
		}
	}

	svc := service.NewFloorService(st, service.Options{
		Publisher:  publishers,
		Calculator: billing.Calculator{Places: cfg.BillingRoundingPlaces},
		Policy:     cfg.CancelPolicy,
		Logger:     log,
	})

	watcher := service.NewWatcher(svc, publishers, cfg.PollInterval, log)
	go watcher.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(cfg, svc, hub, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
