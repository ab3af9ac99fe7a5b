package clienttransport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/auth"
	"github.com/jitsi/jicofo/internal/conference"
	"github.com/jitsi/jicofo/internal/logging"
	"github.com/jitsi/jicofo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ColibriManagerFactory builds the colibri manager backing a newly created
// conference.
type ColibriManagerFactory func(roomID string) conference.ColibriManager

// Hub is the top-level WebSocket entry point: it authenticates connecting
// participants, admits them into the conference named by the room id, and
// wires their Client to that conference's Router. Grounded on
// internal/v1/session/hub.go / internal/v1/transport/hub.go (validate →
// upgrade → getOrCreateRoom → register client), generalized from a single
// protobuf room registry to the colibri-conference Store.
type Hub struct {
	store       *store.Store
	validator   auth.Validator
	colibriFor  ColibriManagerFactory
	baseConfig  conference.Config
	localRegion string

	mu             sync.Mutex
	routers        map[string]*Router
	allowedOrigins []string
}

// NewHub builds a Hub. baseConfig supplies the per-conference settings
// every new room is constructed with (§6 conference.* keys).
func NewHub(validator auth.Validator, colibriFor ColibriManagerFactory, baseConfig conference.Config, localRegion string, conferenceStartTimeout, sweepInterval time.Duration, allowedOrigins []string) *Hub {
	h := &Hub{
		validator:      validator,
		colibriFor:     colibriFor,
		baseConfig:     baseConfig,
		localRegion:    localRegion,
		routers:        make(map[string]*Router),
		allowedOrigins: allowedOrigins,
	}
	h.store = store.New(h.buildOrchestrator, conferenceStartTimeout, sweepInterval)
	return h
}

// Store exposes the underlying ConferenceStore for the operator API and
// load redistributor wiring.
func (h *Hub) Store() *store.Store { return h.store }

// buildOrchestrator is the store.Factory: it creates a Router for the new
// room alongside the Orchestrator, and tears the Router down when the
// conference terminates.
func (h *Hub) buildOrchestrator(roomID string, onTerminate func(string)) *conference.Orchestrator {
	router := NewRouter()
	h.mu.Lock()
	h.routers[roomID] = router
	h.mu.Unlock()

	wrappedTerminate := func(id string) {
		h.mu.Lock()
		delete(h.routers, id)
		h.mu.Unlock()
		onTerminate(id)
	}

	manager := h.colibriFor(roomID)
	return conference.New(roomID, h.baseConfig, manager, router, wrappedTerminate)
}

func (h *Hub) routerFor(roomID string) *Router {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.routers[roomID]
}

// ServeWs authenticates the connecting participant, admits it to the named
// conference, and upgrades the connection to carry the client dialect.
func (h *Hub) ServeWs(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.Query("token")
	identity, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId required"})
		return
	}

	region := c.Query("region")
	if region == "" {
		region = h.localRegion
	}
	statsID := c.Query("statsId")

	orchestrator, _ := h.store.GetOrCreate(roomID)

	role := conference.RoleParticipant
	switch {
	case orchestrator.ParticipantCount() == 0:
		role = conference.RoleOwner
	case identity.Moderator:
		role = conference.RoleModerator
	}

	conn, err := upgradeWebSocket(c, h.allowedOrigins)
	if err != nil {
		logging.Error(ctx, "clienttransport: upgrade failed", zap.Error(err))
		return
	}

	if err := orchestrator.AdmitParticipant(ctx, identity.Subject, statsID, region, role); err != nil {
		logging.Warn(ctx, "clienttransport: admission rejected", zap.String("endpoint_id", identity.Subject), zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}

	client := NewClient(conn, orchestrator, identity.Subject)
	router := h.routerFor(roomID)
	if router != nil {
		router.Register(identity.Subject, client)
	}

	go func() {
		client.Run(context.Background())
		if router != nil {
			router.Unregister(identity.Subject, client)
		}
	}()
}
