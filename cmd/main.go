package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"target-speaker-monitor/internal/config"
	"target-speaker-monitor/internal/events"
	monitorhttp "target-speaker-monitor/internal/http"
	"target-speaker-monitor/internal/observability"
	"target-speaker-monitor/internal/observability/logging"
	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/session"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
	})
	defer publisher.Close()

	profiles := profile.NewStore(cfg.Profiles.Dir)
	manager := session.NewManager(cfg, profiles, publisher, logging.Logger())

	obs := observability.NewServer(":" + cfg.Service.MetricsPort)
	obs.Start()

	api := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      monitorhttp.NewRouter(manager, profiles),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket event streams are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", api.Addr).Msg("Target speaker monitor started")
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	manager.StopAll(ctx)
	if err := api.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown failed")
	}
}
