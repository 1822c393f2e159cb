package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

// fabricAuth guards the media fabric's inbound signal. The fabric is a
// trusted internal collaborator; it authenticates with the shared
// secret, not a user identity.
func (s *Server) fabricAuth(c *gin.Context) bool {
	key := c.GetHeader("X-Fabric-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad fabric key"})
		return false
	}
	return true
}

type fabricStreamRequest struct {
	Channel  string `json:"channel" binding:"required"`
	User     string `json:"user" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	StreamID string `json:"stream_id"`
}

// handleFabricDiscover records a stream identity the fabric learned.
// Late reports racing a disconnect are swallowed by the core; the
// fabric always gets a 204.
func (s *Server) handleFabricDiscover(c *gin.Context) {
	if !s.fabricAuth(c) {
		return
	}
	var req fabricStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StreamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}
	s.voice.Discover(
		domain.ChannelID(req.Channel),
		domain.UserID(req.User),
		domain.StreamKind(req.Kind),
		req.StreamID,
	)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFabricClear(c *gin.Context) {
	if !s.fabricAuth(c) {
		return
	}
	var req fabricStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}
	s.voice.Clear(
		domain.ChannelID(req.Channel),
		domain.UserID(req.User),
		domain.StreamKind(req.Kind),
	)
	c.Status(http.StatusNoContent)
}
