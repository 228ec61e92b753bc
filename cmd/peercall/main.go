package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/peercall/internal/adapter/driven/clock"
	"github.com/Wyydra/peercall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/peercall/internal/adapter/driven/media/capture"
	"github.com/Wyydra/peercall/internal/adapter/driven/media/pion"
	repo "github.com/Wyydra/peercall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/peercall/internal/adapter/driven/signaling/peerjs"
	handler "github.com/Wyydra/peercall/internal/adapter/driving/http"
	"github.com/Wyydra/peercall/internal/config"
	"github.com/Wyydra/peercall/internal/core/service"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.Logger = config.NewLogger(cfg, os.Stdout)

	codecs, err := codecSelector()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure codecs")
	}
	devices := capture.New(codecs)

	api, err := pion.NewAPI(pion.EngineConfig{
		UDPPortMin:     cfg.UDPPortMin,
		UDPPortMax:     cfg.UDPPortMax,
		LogLevel:       cfg.LogLevel,
		RegisterCodecs: devices.RegisterCodecs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure webrtc")
	}

	logRepo := repo.NewLogRepository(cfg.LogCapacity)
	hub := ws.NewHub()
	clk := clock.New()

	debugLog := service.NewDebugLog(logRepo, hub, clk)
	callService := service.NewCallService(peerjs.NewFactory(cfg.Signaling, api), devices, hub, debugLog, clk, cfg.Call)
	h := handler.NewHandler(callService, hub, cfg.StaticDir)

	go hub.Run()
	go callService.Run()

	if err := callService.Connect(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start signaling")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("signaling", cfg.Signaling.Host).
			Int("ice_servers", len(cfg.ICEServers)).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := callService.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close call service")
	}
	hub.Stop()
	log.Info().Msg("Server exited")
}
