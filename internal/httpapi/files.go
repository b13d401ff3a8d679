package httpapi

import (
	"net/http"
	"strings"

	"audit-portal/internal/ws"
	"audit-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ServeFile streams a stored attachment. Any authenticated caller with the URL may read it.
func (h Handlers) ServeFile(c *gin.Context) {
	if h.Files == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	path, err := h.Files.Resolve(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.File(path)
}

// Live upgrades to a websocket subscribed to one consultation's events.
func (h Handlers) Live(c *gin.Context) {
	if h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}
	who := caller(c)
	cons, err := h.Consultations.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.FromGin(c).Warn("websocket upgrade failed", "err", err)
		return
	}
	ws.NewClient(h.Hub, conn, cons.ID, who.ID).Serve(c.Request.Context())
}
