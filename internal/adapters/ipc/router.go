package ipc

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/config"
	"github.com/dkeye/voicemedia/internal/logging"
)

const clientIDKey = "client_id"

// ClientIDMiddleware gives every edge process a stable id kept in the
// session cookie.
func ClientIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get(clientIDKey).(string)
		if id == "" {
			id = uuid.NewString()
			s.Set(clientIDKey, id)
			if err := s.Save(); err != nil {
				log.Debug().Str("module", "ipc").Err(err).Msg("save session")
			}
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

// TokenMiddleware rejects requests without the shared engine token. An
// empty token disables the check.
func TokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg config.IPCConfig, ctl *Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(logging.GinMiddleware())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("VoiceMediaSessions", store))
	r.Use(ClientIDMiddleware())

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := api.Group("", TokenMiddleware(cfg.Token))
	authed.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Engine.Snapshot())
	})
	authed.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "ipc").Str("client", c.GetString(clientIDKey)).Msg("ws endpoint hit")
		ctl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "ipc").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
