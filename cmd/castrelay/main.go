package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/castrelay/castrelay/internal/config"
	"github.com/castrelay/castrelay/internal/handler"
	"github.com/castrelay/castrelay/internal/hub"
	"github.com/castrelay/castrelay/internal/media"
	"github.com/castrelay/castrelay/internal/service"
	"github.com/castrelay/castrelay/internal/signaling"
	"github.com/castrelay/castrelay/internal/store"
	pkglog "github.com/castrelay/castrelay/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "castrelay"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting castrelay")

	// Initialize media engine
	engine, err := media.NewPionEngine(media.PionConfig{
		ICEServers: cfg.Media.ICEServers,
		UDPPortMin: cfg.Media.UDPPortMin,
		UDPPortMax: cfg.Media.UDPPortMax,
		Codecs:     mediaCodecs(cfg.Media.Codecs),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize media engine")
	}
	defer engine.Close()

	// Initialize stores and hub
	rooms := store.NewRoomStore(cfg.Room.MaxViewers)
	registry := store.NewRegistry()
	wsHub := hub.NewHub(cfg.WebSocket)

	// Initialize signaling and coordinator
	signals := signaling.NewRouter(wsHub, registry, rooms)
	coordinator := service.NewCoordinator(rooms, registry, signals, engine)

	// Initialize handlers
	wsHandler := handler.NewWSHandler(wsHub, registry, coordinator)
	httpHandler := handler.NewHTTPHandler(coordinator)

	// Setup HTTP server: websocket endpoint plus the REST surface
	wsMux := http.NewServeMux()
	wsHandler.RegisterRoutes(wsMux)

	gin.SetMode(gin.ReleaseMode)
	api := gin.New()
	api.Use(gin.Recovery())
	api.Use(pkglog.GinMiddleware(*logger))
	httpHandler.RegisterRoutes(api)

	mux := http.NewServeMux()
	mux.Handle("/ws", pkglog.HTTPMiddleware(*logger)(wsMux))
	mux.Handle("/", api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("castrelay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down castrelay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("castrelay stopped")
}

func mediaCodecs(configured []config.CodecConfig) []media.Codec {
	codecs := make([]media.Codec, 0, len(configured))
	for _, c := range configured {
		codecs = append(codecs, media.Codec{
			Kind:        c.Kind,
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			PayloadType: c.PayloadType,
			SDPFmtpLine: c.SDPFmtpLine,
		})
	}
	return codecs
}
