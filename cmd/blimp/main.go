package main

import (
	"blimp/ai"
	"blimp/auth"
	"blimp/directory"
	"blimp/internal"
	"blimp/repositories"
	"blimp/runtime"
	"blimp/search"
	"blimp/server"
	"blimp/session"
	"blimp/stream"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close, index
// close) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Engine wiring
	roomRepository := repositories.NewRoomRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)
	userRepository := repositories.NewUserRepository(db)

	dir := directory.NewDirectory(roomRepository, log, messageRepository, index)
	st := stream.NewStream(messageRepository, index, log)
	provider := ai.NewGemini(ai.GeminiConfig{
		APIKey:  config.GeminiAPIKey,
		Model:   config.GeminiModel,
		Timeout: config.GeminiTimeout,
	})

	tokens := auth.NewTokenIssuer(config.AuthTokenSecret, config.AuthTokenDuration)
	identity := auth.NewIdentity(userRepository, tokens, log)

	sessionCfg := session.Config{
		AugmentTimeout: config.GeminiTimeout,
		UpdateBuffer:   config.SessionUpdateBuffer,
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := runtime.NewSupervisor(log)
	sup.Add(
		runtime.NewGCWorker(db, config.GCInterval, log),
		runtime.NewMonitorWorker(config.MonitorInterval, log),
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 6. HTTP Server
	srv := server.New(identity, tokens, dir, st, index, provider, sessionCfg, log)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: srv.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}
