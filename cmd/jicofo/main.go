// Command jicofo runs the conference focus process: it accepts client
// WebSocket sessions, drives bridge selection and colibri allocation for
// each conference, and serves the operator HTTP surface (§6). Grounded on
// cmd/v1/session/main.go's startup sequence (env loading, validator
// selection, router assembly, graceful shutdown), generalized from a
// single-hub chat signaling server to jicofo's multi-component focus.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jitsi/jicofo/internal/api"
	"github.com/jitsi/jicofo/internal/auth"
	"github.com/jitsi/jicofo/internal/bridge"
	"github.com/jitsi/jicofo/internal/bus"
	"github.com/jitsi/jicofo/internal/clienttransport"
	"github.com/jitsi/jicofo/internal/colibri"
	"github.com/jitsi/jicofo/internal/conference"
	"github.com/jitsi/jicofo/internal/config"
	"github.com/jitsi/jicofo/internal/health"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/middleware"
	"github.com/jitsi/jicofo/internal/ratelimit"
	"github.com/jitsi/jicofo/internal/redistribute"
	"github.com/jitsi/jicofo/internal/tracing"
)

func main() {
	// Load .env file for local development; try a few candidate paths to
	// handle different ways of running the binary.
	envPaths := []string{".env", "../../.env", "../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jicofo: invalid configuration:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		fmt.Fprintln(os.Stderr, "jicofo: failed to initialize logging:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !envLoaded {
		logging.Warn(ctx, "no .env file found in any expected location, relying on environment variables")
	}

	if collectorAddr := os.Getenv("OTEL_COLLECTOR_ADDR"); collectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "jicofo", collectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled: failed to initialize tracer provider", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	validator := buildValidator(ctx, cfg)

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to messaging bus, continuing in single-instance mode", zap.Error(err))
			busService = nil
		}
	}

	selector := bridge.NewSelector(cfg.OverloadThreshold)

	selfID := cfg.BridgeXMPPConnectionName
	if selfID == "" {
		selfID = "jicofo"
	}
	busTransport := colibri.NewBusTransport(busService, selfID, cfg.LoadRedistributionTimeout)
	busTransport.Start(ctx)
	colibriTransport := colibri.NewTransport(busTransport)

	colibriFactory := func(roomID string) conference.ColibriManager {
		return colibri.NewManager(roomID, selector, colibriTransport, cfg.LoadRedistributionTimeout)
	}

	conferenceConfig := conference.Config{
		MinParticipants:          cfg.MinParticipants,
		SingleParticipantTimeout: cfg.ConferenceSingleParticipantTimeout,
		StartTimeout:             cfg.ConferenceInitialTimeout,
		MaxSsrcsPerUser:          cfg.MaxSsrcsPerUser,
		MaxSsrcGroupsPerUser:     cfg.MaxSsrcGroupsPerUser,
		RestartMaxRequests:       cfg.RestartRequestMaxRequests,
		RestartInterval:          cfg.RestartRequestInterval,
		RestartMinInterval:       cfg.RestartRequestMinInterval,
		DelayForSize:             cfg.DelayForSize,
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	hub := clienttransport.NewHub(validator, colibriFactory, conferenceConfig, cfg.BridgeBreweryJID,
		cfg.ConferenceInitialTimeout, 10*time.Second, allowedOrigins)
	hub.Store().AddListener(&busConferenceNotifier{bus: busService})
	hub.Store().Start(ctx)
	defer hub.Store().Stop()

	redistributor := redistribute.New(redistribute.Config{
		Enabled:         cfg.LoadRedistributionEnabled,
		Interval:        cfg.LoadRedistributionInterval,
		Timeout:         cfg.LoadRedistributionTimeout,
		Endpoints:       cfg.LoadRedistributionEndpoints,
		StressThreshold: cfg.LoadRedistributionStressThreshold,
	}, selector, redistribute.NewStoreMover(hub.Store()))
	redistributor.Start(ctx)
	defer redistributor.Stop()

	healthHandler := health.NewHandler(busService, selector)
	grpcHealth := health.NewGRPCServer(selector)

	busRedisClient := busService.Client() // nil-safe: nil *Service returns nil client
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busRedisClient)
	if err != nil {
		logging.Error(ctx, "failed to initialize rate limiter, continuing without it", zap.Error(err))
		rateLimiter = nil
	}

	router := gin.Default()
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("jicofo"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	if rateLimiter != nil {
		router.Use(rateLimiter.GlobalMiddleware())
	}

	router.GET("/ws/:roomId", hub.ServeWs)

	operatorAPI := api.New(healthHandler, hub.Store(), selector, redistributor)
	operatorAPI.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "jicofo HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "HTTP server failed", zap.Error(err))
		}
	}()

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	grpcPort := os.Getenv("GRPC_HEALTH_PORT")
	if grpcPort == "" {
		grpcPort = "50051"
	}
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logging.Error(ctx, "failed to bind gRPC health listener, continuing without it", zap.Error(err))
	} else {
		go func() {
			logging.Info(ctx, "jicofo gRPC health server starting", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				logging.Error(ctx, "gRPC health server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logging.Info(context.Background(), "jicofo shutting down")

	app := &App{
		httpServer:    srv,
		grpcServer:    grpcServer,
		store:         hub.Store(),
		redistributor: redistributor,
		bus:           busService,
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "jicofo shutdown encountered an error", zap.Error(err))
	}

	logging.Info(context.Background(), "jicofo exited")
}

// buildValidator selects the auth.Validator implementation named by
// cfg.Auth (§6 auth.type), logging a loud fallback warning for the
// permissive modes rather than failing closed.
func buildValidator(ctx context.Context, cfg *config.Config) auth.Validator {
	switch cfg.Auth {
	case config.AuthJWT:
		v, err := auth.NewJWTValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logging.Error(ctx, "failed to initialize JWT validator, falling back to NONE", zap.Error(err))
			auth.LogFallback(ctx, string(config.AuthNone))
			return auth.NoneValidator{}
		}
		return v
	case config.AuthXMPP:
		auth.LogFallback(ctx, string(config.AuthXMPP))
		return auth.XMPPValidator{}
	default:
		auth.LogFallback(ctx, string(config.AuthNone))
		return auth.NoneValidator{}
	}
}
