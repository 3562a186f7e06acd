package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/adapters/auth"
	"github.com/dkeye/Hearing/internal/adapters/signal"
	"github.com/dkeye/Hearing/internal/app"
	"github.com/dkeye/Hearing/internal/app/hub"
	"github.com/dkeye/Hearing/internal/config"
	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/wire"
)

const (
	identityKey    = "identity"
	clientTokenKey = "client_token"
)

// ClientTokenMiddleware keeps a stable per-browser token in the cookie
// session, used to correlate reconnecting sockets in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("ct").(string)
		if token == "" {
			token = uuid.NewString()
			s.Set("ct", token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// IdentityMiddleware authenticates the caller; browsers may pass the token
// as a query parameter since they cannot set headers on websocket requests.
func IdentityMiddleware(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := v.Verify(bearerToken(c))
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		for _, r := range roles {
			if identity.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(domain.Identity)
	return identity
}

func SetupRouter(ctx context.Context, cfg config.ServerConfig, h *hub.Hub, ctrl *signal.SignalWSController, verifier *auth.Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("HearingSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.Directory.ConnectionCount()})
	})

	api := r.Group("/api")
	api.Use(IdentityMiddleware(verifier))

	api.GET("/ws/hub", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c, identityFrom(c))
	})
	api.POST("/events", RequireRole(domain.RoleSystem), publishEvent(h))
	api.GET("/groups/:name", RequireRole(domain.RoleVHOfficer), describeGroup(h))
	api.GET("/conferences/:id/heartbeats", RequireRole(domain.RoleVHOfficer), recentHeartbeats(h))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// publishEvent accepts one enveloped event from an upstream producer and
// routes it through the hub.
func publishEvent(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ev, err := wire.Decode(body)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		res, err := h.OnGroupEvent(c.Request.Context(), ev)
		switch {
		case errors.Is(err, domain.ErrMalformedEvent):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		case domain.Classify(err) == domain.ClassStale:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"type":    ev.Type(),
			"sent_to": res.SentTo,
			"dropped": len(res.Dropped),
		})
	}
}

func describeGroup(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		group := app.GroupName(c.Param("name"))
		members := h.Directory.MembersOf(group)
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Identity.Name)
		}
		c.JSON(http.StatusOK, gin.H{
			"group":   group,
			"count":   len(members),
			"members": names,
		})
	}
}

func recentHeartbeats(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		reader, ok := h.Heartbeats.(core.HeartbeatReader)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "heartbeat history not stored"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		list, err := reader.Recent(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("conference", c.Param("id")).Msg("heartbeat history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat history unavailable"})
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, hb := range list {
			out = append(out, gin.H{
				"participant_id": hb.ParticipantID,
				"received_at":    hb.ReceivedAt,
				"metrics":        hb.Metrics,
			})
		}
		c.JSON(http.StatusOK, gin.H{"conference": c.Param("id"), "heartbeats": out})
	}
}
