package clienttransport

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/jitsi/jicofo/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// validateOrigin checks the request's Origin header against the allowed
// list, permitting non-browser clients that send no Origin at all.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin url: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

var upgraderWriteBufferPool = &sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

// upgradeWebSocket upgrades the HTTP connection, enforcing the same
// origin policy at the protocol layer that ServeWs already checked.
func upgradeWebSocket(c *gin.Context, allowedOrigins []string) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, allowedOrigins) == nil
		},
		WriteBufferPool: upgraderWriteBufferPool,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "clienttransport: websocket upgrade failed", zap.Error(err))
		return nil, err
	}
	return conn, nil
}
