package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chat-drawer/backend/internal/config"
	"github.com/zhouzirui/chat-drawer/backend/internal/handler"
	"github.com/zhouzirui/chat-drawer/backend/internal/handler/stream"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/assistant"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/recording"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	if _, ok := personaStore.FindByID(cfg.Assistant.Persona); !ok {
		log.Fatalf("unknown ASSISTANT_PERSONA %q", cfg.Assistant.Persona)
	}

	drawers := drawer.NewService(personaStore, drawerOptions(cfg)...)
	defer drawers.Close()

	if cfg.Recording.DenyMicrophone {
		log.Println("microphone permission will be denied for every recording")
	}

	streams := stream.New(drawers)
	defer streams.Close()

	router := handler.NewRouter(personaStore, drawers, streams)

	startServer(ctx, cfg.Server, router)
}

func drawerOptions(cfg *config.Config) []drawer.Option {
	strategyOpts := []assistant.Option{
		assistant.WithDelayRange(cfg.Assistant.MinDelay, cfg.Assistant.MaxDelay),
		assistant.WithCardProbability(cfg.Assistant.CardProbability),
	}
	if cfg.Assistant.Seed != 0 {
		strategyOpts = append(strategyOpts, assistant.WithSeed(cfg.Assistant.Seed))
	}

	return []drawer.Option{
		drawer.WithDefaultPersona(cfg.Assistant.Persona),
		drawer.WithMicrophone(recording.NewExclusiveMicrophone(recording.NewMockMicrophone(cfg.Recording.DenyMicrophone))),
		drawer.WithStrategyOptions(strategyOpts...),
		drawer.WithRecordingOptions(
			recording.WithCancelThreshold(cfg.Recording.CancelThreshold),
			recording.WithTickInterval(cfg.Recording.TickInterval),
		),
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat drawer backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
