// Package http wires the gin router: the client websocket, the media
// fabric's discovery endpoint, the two tunnel proxy legs and a small
// read-only ops surface. Authentication happens here; the voice core
// only ever sees user ids.
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/config"
	"github.com/mattias800/snacka-sub010/internal/domain"
	"github.com/mattias800/snacka-sub010/internal/tunnel"
	"github.com/mattias800/snacka-sub010/internal/voice"
)

type Server struct {
	// ctx bounds connection lifetimes to the process, not to the
	// upgrade request that spawned them.
	ctx    context.Context
	cfg    *config.Config
	hub    *hub.Hub
	voice  *voice.Service
	proxy  *tunnel.Proxy
	issuer *tunnel.Issuer
}

func NewServer(ctx context.Context, cfg *config.Config, h *hub.Hub, svc *voice.Service, proxy *tunnel.Proxy, issuer *tunnel.Issuer) *Server {
	return &Server{ctx: ctx, cfg: cfg, hub: h, voice: svc, proxy: proxy, issuer: issuer}
}

// ClientTokenMiddleware tags every browser session with a stable id,
// used only for log correlation.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	if s.cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if s.cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(s.cfg.Secret))
	r.Use(sessions.Sessions("SnackaSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/ws", s.handleWS)
	api.POST("/fabric/streams", s.handleFabricDiscover)
	api.DELETE("/fabric/streams", s.handleFabricClear)
	api.GET("/tunnel/serve/:token", s.handleTunnelServe)
	api.GET("/tunnel/:token", s.handleTunnelAccess)
	api.GET("/channels/:id/participants", s.handleParticipants)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// identity authenticates the caller from the signed identity token the
// session service issued. The core trusts this id; issuing it is out
// of scope here.
func (s *Server) identity(c *gin.Context) (domain.UserID, bool) {
	raw := c.Query("token")
	if raw == "" {
		raw = c.GetHeader("Authorization")
		if len(raw) > 7 && raw[:7] == "Bearer " {
			raw = raw[7:]
		}
	}
	if raw == "" {
		return "", false
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", false
	}
	return domain.UserID(claims.Subject), true
}

func (s *Server) handleParticipants(c *gin.Context) {
	if _, ok := s.identity(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return
	}
	channelID := domain.ChannelID(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"channel_id":   channelID,
		"participants": s.voice.Participants(channelID),
		"streams":      s.voice.StreamSnapshot(channelID),
		"shares":       s.voice.Shares(channelID),
	})
}
