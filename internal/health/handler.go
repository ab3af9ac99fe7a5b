// Package health exposes jicofo's liveness/readiness checks: an HTTP surface
// for the operator REST façade (out of scope here, contract only) and a gRPC
// health server for orchestration-layer liveness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jitsi/jicofo/internal/bus"
	"github.com/jitsi/jicofo/internal/logging"
	"go.uber.org/zap"
)

// BridgeFleetChecker reports whether the bridge selector currently has at
// least one usable bridge; satisfied by *bridge.Selector.
type BridgeFleetChecker interface {
	HasNonOverloadedBridge() bool
}

// Handler manages HTTP health check endpoints.
type Handler struct {
	bus    *bus.Service
	bridge BridgeFleetChecker
}

// NewHandler creates a new health check handler. bridge may be nil if load
// redistribution / selection health is not to be part of readiness.
func NewHandler(busService *bus.Service, bridge BridgeFleetChecker) *Handler {
	return &Handler{bus: busService, bridge: bridge}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /about/health: 200 if the process is alive, no
// dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles a readiness probe: 200 only if all critical dependencies
// are healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	busStatus := h.checkBus(ctx)
	checks["bus"] = busStatus
	if busStatus != "healthy" {
		allHealthy = false
	}

	if h.bridge != nil {
		bridgeStatus := "unhealthy"
		if h.bridge.HasNonOverloadedBridge() {
			bridgeStatus = "healthy"
		}
		checks["bridge_fleet"] = bridgeStatus
		if bridgeStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkBus verifies messaging bus connectivity using PING.
func (h *Handler) checkBus(ctx context.Context) string {
	if h.bus == nil {
		return "healthy"
	}
	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "messaging bus health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// HealthCheckResponse is a generic health check response for backward compatibility.
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}

// GRPCServer implements healthpb.HealthServer so operators/orchestrators
// (k8s, systemd) can probe jicofo over gRPC the same way jicofo itself
// would probe a bridge's colibri endpoint.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	bridge BridgeFleetChecker
}

// NewGRPCServer builds a gRPC health server reporting SERVING while the
// process is up and NOT_SERVING once the bridge fleet is exhausted.
func NewGRPCServer(bridge BridgeFleetChecker) *GRPCServer {
	return &GRPCServer{bridge: bridge}
}

func (s *GRPCServer) Check(_ context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if s.bridge != nil && !s.bridge.HasNonOverloadedBridge() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func (s *GRPCServer) Watch(req *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	resp, err := s.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	return stream.Send(resp)
}
