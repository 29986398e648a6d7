package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before exit.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are
		// flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if err := os.MkdirAll(config.UploadsDir, 0o755); err != nil {
		return exitRuntime, fmt.Errorf("uploads dir: %w", err)
	}

	// 3. Core components
	verifier := auth.NewVerifier([]byte(config.JWTSecret))
	messageRepository := repositories.NewMessageRepository(db, logger)
	conversationRepository := repositories.NewConversationRepository(db, logger)
	directory := services.NewConversationDirectory(conversationRepository, logger)
	history := services.NewHistoryService(messageRepository, directory, config.HistoryLimit)
	registry := runtime.NewConnectionRegistry()

	var moderator *moderation.Moderator
	if config.EnableModeration {
		words := moderation.EmbeddedWords()
		moderator, err = moderation.NewModerator(words, charReplacement)
		if err != nil {
			return exitRuntime, fmt.Errorf("moderation setup failed: %w", err)
		}
		logger.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	}

	router := runtime.NewMessageRouter(registry, directory, messageRepository, moderator, logger)

	// 4. Background workers under supervision
	healthWorker := workers.NewHealthMonitoringWorker(logger, registry, config.MetricInterval)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(healthWorker)
	go supervisor.Run(ctx)
	defer supervisor.Stop()

	// 5. HTTP surface: REST + websocket endpoint
	restAPI := api.New(verifier, history, directory, healthWorker,
		config.UploadsDir, config.MaxUploadBytes, logger)
	mux := restAPI.Routes()
	mux.Handler(http.MethodGet, "/ws", ws.NewHandler(
		verifier, registry, router, config.ConnectionBufferSize, logger))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server running on http://%s", addr))
		logger.Info(fmt.Sprintf("Websocket endpoint on ws://%s/ws", addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return exitRuntime, fmt.Errorf("shutdown error: %w", err)
		}
		return exitOK, nil
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return exitRuntime, err
		}
		return exitOK, nil
	}
}
