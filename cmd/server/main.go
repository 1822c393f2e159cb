package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/adapters/directory"
	router "github.com/mattias800/snacka-sub010/internal/adapters/http"
	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	sigctl "github.com/mattias800/snacka-sub010/internal/adapters/signal"
	"github.com/mattias800/snacka-sub010/internal/config"
	"github.com/mattias800/snacka-sub010/internal/domain"
	"github.com/mattias800/snacka-sub010/internal/tunnel"
	"github.com/mattias800/snacka-sub010/internal/voice"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dir := directory.New()
	dir.Load(cfg.Directory)

	// The hub resolves channel groups through the registry; the
	// registry publishes through the hub. Break the construction
	// cycle with a late-bound resolver.
	var svc *voice.Service
	h := hub.New(func(ch domain.ChannelID) []domain.UserID {
		participants := svc.Participants(ch)
		out := make([]domain.UserID, 0, len(participants))
		for _, p := range participants {
			out = append(out, p.UserID)
		}
		return out
	})
	svc = voice.NewService(dir, h)

	issuer := tunnel.NewIssuer(cfg.Secret, cfg.TunnelTTL, cfg.PublicURL)
	proxy := tunnel.NewProxy()
	svc.SetProxyControl(proxy)
	svc.SetAccessIssuer(issuer)

	h.SetHandler(sigctl.NewController(svc))
	h.SetOnUserGone(svc.Disconnect)

	r := router.NewServer(ctx, cfg, h, svc, proxy, issuer).SetupRouter()
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voice coordination server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	h.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
