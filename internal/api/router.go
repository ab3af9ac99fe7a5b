// Package api serves jicofo's operator HTTP surface (§6): health, metrics,
// fleet/conference introspection, and on-demand pin/move endpoints.
// Grounded on cmd/v1/session/main.go's router wiring (gin.Default(), CORS,
// promhttp.Handler() mounted via gin.WrapH) generalized from a single
// session API to the focus's operator-facing control surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jitsi/jicofo/internal/bridge"
	"github.com/jitsi/jicofo/internal/health"
	"github.com/jitsi/jicofo/internal/store"
)

// Version is set at build time (ldflags) and reported by /about/version.
var Version = "dev"

// BridgeFleet is the subset of *bridge.Selector the router reports on.
type BridgeFleet interface {
	Snapshot() []*bridge.Bridge
}

// Redistributor is the on-demand move API exposed by
// *redistribute.Redistributor (§6 /move-endpoint, /move-endpoints,
// /move-fraction).
type Redistributor interface {
	MoveEndpoint(ctx context.Context, conferenceID, endpointID, fromBridge string) error
	MoveEndpoints(ctx context.Context, conferenceID, bridgeJID string, n int) (int, error)
	MoveFraction(ctx context.Context, bridgeJID string, frac float64) (int, error)
}

// Router wires the operator HTTP surface over a health handler, the
// conference store, the bridge fleet, and the load redistributor.
type Router struct {
	health       *health.Handler
	store        *store.Store
	fleet        BridgeFleet
	redistribute Redistributor
}

// New builds a Router. Any dependency may be nil; the endpoints that need
// it report 503/empty rather than panicking, so a degraded deployment
// (no redistributor configured, no bridge selector yet populated) still
// serves liveness/readiness.
func New(healthHandler *health.Handler, conferenceStore *store.Store, fleet BridgeFleet, redistributor Redistributor) *Router {
	return &Router{health: healthHandler, store: conferenceStore, fleet: fleet, redistribute: redistributor}
}

// Register mounts every operator route onto engine.
func (r *Router) Register(engine *gin.Engine) {
	about := engine.Group("/about")
	about.GET("/health", r.health.Liveness)
	about.GET("/version", r.version)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/stats", r.stats)
	engine.GET("/debug", r.debug)

	engine.POST("/pin", r.pin)
	engine.POST("/unpin", r.unpin)
	engine.POST("/move-endpoint", r.moveEndpoint)
	engine.POST("/move-endpoints", r.moveEndpoints)
	engine.POST("/move-fraction", r.moveFraction)
}

func (r *Router) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}

// bridgeStats is the /stats and /debug wire shape for one bridge.
type bridgeStats struct {
	JID                string  `json:"jid"`
	Region             string  `json:"region"`
	Version            string  `json:"version"`
	Operational        bool    `json:"operational"`
	Draining           bool    `json:"draining"`
	Stress             float64 `json:"stress"`
	EndpointsMoved     uint64  `json:"endpointsMoved"`
	LastReportedSecAgo float64 `json:"lastReportedSecondsAgo"`
}

func (r *Router) bridgeSnapshot() []bridgeStats {
	if r.fleet == nil {
		return nil
	}
	bridges := r.fleet.Snapshot()
	out := make([]bridgeStats, 0, len(bridges))
	for _, b := range bridges {
		out = append(out, bridgeStats{
			JID:                b.JID,
			Region:             b.Region,
			Version:            b.Version,
			Operational:        b.IsOperational(),
			Draining:           b.IsDraining(),
			Stress:             b.CorrectedStress(),
			EndpointsMoved:     b.EndpointsMovedTotal(),
			LastReportedSecAgo: time.Since(b.LastReported()).Seconds(),
		})
	}
	return out
}

// stats reports a summary view: conference count and per-bridge fleet
// health, the numbers an operator dashboard polls regularly (§6).
func (r *Router) stats(c *gin.Context) {
	conferenceCount := 0
	if r.store != nil {
		conferenceCount = r.store.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"conferences": conferenceCount,
		"bridges":     r.bridgeSnapshot(),
	})
}

// conferenceDebug is the /debug wire shape for one conference.
type conferenceDebug struct {
	RoomID       string `json:"roomId"`
	State        string `json:"state"`
	Participants int    `json:"participants"`
}

// debug reports every live conference alongside the bridge fleet, for
// operator troubleshooting (§6). Unlike /stats this enumerates every room,
// so it is expected to be heavier and is not meant for tight polling.
func (r *Router) debug(c *gin.Context) {
	var conferences []conferenceDebug
	if r.store != nil {
		for _, o := range r.store.All() {
			conferences = append(conferences, conferenceDebug{
				RoomID:       o.RoomID,
				State:        o.State().String(),
				Participants: o.ParticipantCount(),
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"conferences": conferences,
		"bridges":     r.bridgeSnapshot(),
	})
}

type pinRequest struct {
	RoomID        string `json:"roomId" binding:"required"`
	BridgeVersion string `json:"bridgeVersion" binding:"required"`
	DurationSec   int    `json:"durationSeconds"`
}

// pin handles POST /pin: stick roomId to bridgeVersion for durationSeconds
// (default 1h) per §4.6.
func (r *Router) pin(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DurationSec <= 0 {
		req.DurationSec = 3600
	}
	r.store.Pin(req.RoomID, req.BridgeVersion, time.Duration(req.DurationSec)*time.Second)
	c.Status(http.StatusNoContent)
}

type unpinRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// unpin handles POST /unpin.
func (r *Router) unpin(c *gin.Context) {
	var req unpinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.store.Unpin(req.RoomID)
	c.Status(http.StatusNoContent)
}

type moveEndpointRequest struct {
	ConferenceID string `json:"conferenceId" binding:"required"`
	EndpointID   string `json:"endpointId" binding:"required"`
	FromBridge   string `json:"fromBridge"`
}

// moveEndpoint handles POST /move-endpoint (§6).
func (r *Router) moveEndpoint(c *gin.Context) {
	if r.redistribute == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "load redistribution disabled"})
		return
	}
	var req moveEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.redistribute.MoveEndpoint(c.Request.Context(), req.ConferenceID, req.EndpointID, req.FromBridge); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type moveEndpointsRequest struct {
	ConferenceID string `json:"conferenceId"`
	BridgeJID    string `json:"bridgeJid" binding:"required"`
	Count        int    `json:"count" binding:"required"`
}

// moveEndpoints handles POST /move-endpoints (§6). ConferenceID is
// optional: omitted, candidates are drawn greedily across every
// conference on bridgeJid.
func (r *Router) moveEndpoints(c *gin.Context) {
	if r.redistribute == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "load redistribution disabled"})
		return
	}
	var req moveEndpointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	moved, err := r.redistribute.MoveEndpoints(c.Request.Context(), req.ConferenceID, req.BridgeJID, req.Count)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}

type moveFractionRequest struct {
	BridgeJID string  `json:"bridgeJid" binding:"required"`
	Fraction  float64 `json:"fraction" binding:"required"`
}

// moveFraction handles POST /move-fraction (§6).
func (r *Router) moveFraction(c *gin.Context) {
	if r.redistribute == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "load redistribution disabled"})
		return
	}
	var req moveFractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	moved, err := r.redistribute.MoveFraction(c.Request.Context(), req.BridgeJID, req.Fraction)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}
