package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/tunnel"
)

// ownerDialTimeout bounds how long a requester waits for the owner's
// client to dial back the serve leg.
const ownerDialTimeout = 15 * time.Second

// handleTunnelAccess is the requester leg. The URL token was minted by
// RequestAccess; the share is re-checked here so a tunnel stopped
// between issuance and redemption is a 404, not a dangling proxy.
func (s *Server) handleTunnelAccess(c *gin.Context) {
	grant, err := s.issuer.ParseAccess(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad or expired token"})
		return
	}
	share, err := s.voice.AuthorizeAccess(grant.TunnelID, grant.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tunnel gone"})
		return
	}

	connID, ownerLeg := s.proxy.Expect()
	serveURL, err := s.issuer.ServeURL(share, connID)
	if err != nil {
		s.proxy.Abort(connID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if err := s.voice.NotifyTunnelConnect(share, serveURL); err != nil {
		s.proxy.Abort(connID)
		c.JSON(http.StatusBadGateway, gin.H{"error": "owner unreachable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.proxy.Abort(connID)
		log.Error().Err(err).Str("module", "adapters.http").Msg("tunnel upgrade")
		return
	}
	requester := tunnel.NewWSStream(conn)

	timer := time.NewTimer(ownerDialTimeout)
	defer timer.Stop()
	select {
	case owner := <-ownerLeg:
		s.proxy.Run(s.ctx, share.ID, connID, requester, owner)
	case <-timer.C:
		s.proxy.Abort(connID)
		_ = requester.Close()
		log.Warn().Err(tunnel.ErrOwnerTimeout).Str("module", "adapters.http").Str("tunnel", string(share.ID)).Msg("owner dial-back timed out")
	case <-s.ctx.Done():
		s.proxy.Abort(connID)
		_ = requester.Close()
	}
}

// handleTunnelServe is the owner's dial-back leg, pairing with the
// requester waiting on the connection id inside the serve token.
func (s *Server) handleTunnelServe(c *gin.Context) {
	grant, err := s.issuer.ParseServe(c.Param("token"))
	if err != nil || grant.ConnID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("serve upgrade")
		return
	}
	owner := tunnel.NewWSStream(conn)
	if err := s.proxy.OfferOwnerLeg(grant.ConnID, owner); err != nil {
		// The requester gave up or the tunnel died meanwhile.
		_ = owner.Close()
		log.Warn().Err(err).Str("module", "adapters.http").Str("conn", grant.ConnID).Msg("serve leg rejected")
	}
}
