package main

import (
	"chat-presence/auth"
	wsserver "chat-presence/infrastructure/websocket"
	"chat-presence/internal"
	"chat-presence/moderation"
	"chat-presence/observability"
	"chat-presence/repositories"
	"chat-presence/runtime"
	"chat-presence/runtime/workers"
	"chat-presence/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectMapper)
	}

	// 3. Moderation
	censored, err := runtime.LoadCensoredWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("censored words loading failed: %w", err)
	}
	logger.Info("Censored words loaded", "words", len(censored.Words), "languages", censored.Languages)
	moderator, err := moderation.NewModerator(censored.Words, charReplacement, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}

	// 4. Presence runtime & chat rules
	participants := repositories.NewParticipantRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	metrics := observability.NewMetrics()

	orchestrator := runtime.NewOrchestrator(logger, workers.NewSupervisor(logger, config.RestartInterval), participants,
		runtime.Settings{
			DeliveryTimeout:    config.DeliveryTimeout,
			LookupTimeout:      config.LookupTimeout,
			PresenceBufferSize: config.PresenceBufferSize,
			MetricInterval:     config.MetricInterval,
		})
	orchestrator.Broadcaster().WithObserver(metrics.ObserveBroadcast)

	chatService := services.NewChatService(logger, orchestrator.Broadcaster(), orchestrator.Coordinator(),
		messages, moderator, config.MaxContentLength, config.DeliveryTimeout)

	errChan := make(chan error, 3)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx, chatService, metrics)
	}()

	// 5. WebSocket & HTTP API
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	server := wsserver.NewServer(logger, tokens, orchestrator, chatService, wsserver.Settings{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteWait:            config.WriteWait,
		PongWait:             config.PongWait,
		MaxFrameSize:         config.MaxFrameSize,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           wsserver.NewRouter(server, metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		// Sockets inherit ctx, so a shutdown signal ends every read loop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. gRPC admin server (health + reflection)
	adminAddress := fmt.Sprintf("%s:%d", config.Host, config.AdminPort)
	listener, err := net.Listen("tcp", adminAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", adminAddress, err)
	}
	admin := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(admin, healthServer)
	reflection.Register(admin)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Info("Starting gRPC admin server", "address", adminAddress)
		for serviceName := range admin.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := admin.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC admin server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Final Cleanup (Graceful Shutdown)
	// Every step below must end before the deferred db.Close.
	logger.Info("Shutting down gracefully...")
	stop() // cancels ctx: socket read loops and workers return
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := server.Drain(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still open", "error", err)
	}
	admin.GracefulStop()
	orchestrator.Stop()
	select {
	case <-orchestratorDone:
	case <-shutdownCtx.Done():
		logger.Warn("Supervised workers still running", "error", shutdownCtx.Err())
	}
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
