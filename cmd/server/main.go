package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"simex/api"
	"simex/config"
	"simex/domain/book"
	"simex/engine"
	"simex/engine/events"
	"simex/infra/kafka"
	"simex/infra/logging"
	"simex/infra/outbox"
	"simex/jobs/broadcaster"
)

func main() {
	cfg := config.Load("")

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer func() { _ = ob.Close() }()

	// ---------------- Engine ----------------

	eng := engine.New(log,
		engine.WithAcquireTimeout(cfg.LockTimeout),
		engine.WithDepthLevels(cfg.DepthLevels),
	)

	// Every trade bound for downstream consumers goes through the
	// durable outbox; the broadcaster relays it to Kafka.
	eng.Events().Subscribe(events.TypeTrade, func(payload any) {
		t, ok := payload.(book.Trade)
		if !ok {
			return
		}
		data, err := json.Marshal(t)
		if err != nil {
			return
		}
		if err := ob.Put(t.Seq, data); err != nil {
			log.Error("outbox put failed", zap.Uint64("seq", t.Seq), zap.Error(err))
		}
	})

	// ---------------- Kafka delivery ----------------

	if len(cfg.KafkaBrokers) > 0 {
		bc, err := broadcaster.New(ob, cfg.KafkaBrokers, cfg.TradeTopic, cfg.RelayInterval, log)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer func() { _ = bc.Close() }()
		go bc.Run(ctx)

		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic)
		defer func() { _ = producer.Close() }()
		eng.Events().Subscribe(events.TypeNotification, func(payload any) {
			n, ok := payload.(engine.Notification)
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				return
			}
			if err := producer.Send(ctx, n.Symbol, data); err != nil {
				log.Warn("notification publish failed", zap.Error(err))
			}
		})
	} else {
		log.Info("kafka delivery disabled, no brokers configured")
	}

	// ---------------- API ----------------

	srv := api.NewServer(eng, log)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx, cfg.ListenAddr) }()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			log.Fatal("api server exited", zap.Error(err))
		}
	}

	// ---------------- Shutdown ----------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown failed", zap.Error(err))
	}
	if err := eng.Flush(shutdownCtx); err != nil {
		log.Warn("event flush interrupted", zap.Error(err))
	}
	log.Info("shutdown complete")
}
