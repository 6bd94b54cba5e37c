package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxbridge/realtime-relay/internal/config"
	"github.com/voxbridge/realtime-relay/internal/logger"
	"github.com/voxbridge/realtime-relay/internal/relay"
)

func main() {
	log := logger.New("server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	handler := relay.NewHandler(cfg, relay.NewStore(), log)

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: handler.Routes(),
	}

	go func() {
		log.Info().
			Str("address", cfg.Address).
			Str("upstream", cfg.UpstreamURL).
			Str("model", cfg.Model).
			Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
