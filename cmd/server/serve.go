package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/huddle/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/huddle/internal/adapter/driven/persistence/memory"
	mongostore "github.com/Wyydra/huddle/internal/adapter/driven/persistence/mongo"
	redisstore "github.com/Wyydra/huddle/internal/adapter/driven/persistence/redis"
	handler "github.com/Wyydra/huddle/internal/adapter/driving/http"
	"github.com/Wyydra/huddle/internal/config"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// store is everything a relay backend provides.
type store interface {
	port.MeetingRepository
	port.MeetingFeed
	port.SignalGateway
	port.NoteRepository
	port.HistoryRepository
	port.Clock
}

func newServeCmd() *cobra.Command {
	var addr, backend string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := finishConfig(func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.Server.Addr = addr
				}
				if cmd.Flags().Changed("store") {
					c.Store.Backend = backend
				}
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&backend, "store", config.BackendMemory, "memory, redis or mongo")
	return cmd
}

func openStore(ctx context.Context, c config.StoreConfig) (store, func(), error) {
	switch c.Backend {
	case config.BackendMemory:
		return memory.NewStore(), func() {}, nil

	case config.BackendRedis:
		s, err := redisstore.Connect(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}, nil

	case config.BackendMongo:
		s, err := mongostore.Connect(ctx, c.MongoURI, c.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", c.Backend)
}

func serve(ctx context.Context, cfg config.Config) error {
	backend, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	meetings := service.NewMeetingService(backend, backend)
	notes := service.NewNoteService(backend)
	hub := ws.NewHub()
	go hub.Run()

	h := handler.NewHandler(meetings, notes, backend, backend, hub)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h.NewRouter(cfg.Server.AllowedOrigins),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Store.Backend).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		hub.Stop()
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	log.Info().Msg("Server exited")
	return nil
}
