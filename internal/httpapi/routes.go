package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thunder45/service-translate/internal/audiocache"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/wsserver"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Dependencies bundles what the HTTP surface needs to serve cached audio
// and report health.
type Dependencies struct {
	Cache      *audiocache.Cache
	Sessions   *session.Registry
	Supervisor *wsserver.Supervisor
	Signer     *Signer
	Logger     *logging.Logger
}

// InitializeRoutes mounts the WebSocket upgrade endpoints and the HTTP-only
// routes (audio serving, health) on a gin Engine, per §6.
func InitializeRoutes(r *gin.Engine, deps Dependencies, sup *wsserver.Supervisor) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"activeSessions":  deps.Sessions.Count(),
			"activeConnections": deps.Supervisor.Count(),
			"audioCacheBytes": deps.Cache.TotalSize(),
		})
	})

	r.GET("/audio/:file", func(c *gin.Context) {
		serveAudio(c, deps)
	})

	r.GET("/ws/admin", func(c *gin.Context) {
		sup.HandleUpgrade(c.Writer, c.Request, wsserver.RoleAdmin)
	})
	r.GET("/ws/listener", func(c *gin.Context) {
		sup.HandleUpgrade(c.Writer, c.Request, wsserver.RoleListener)
	})
}

// serveAudio implements the `/audio/{fingerprint}.{ext}` route of §6: a
// cache-backed blob download gated by a short-lived signed token.
func serveAudio(c *gin.Context, deps Dependencies) {
	file := c.Param("file")
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	fingerprint := strings.TrimSuffix(file, "."+ext)

	if !deps.Signer.Verify(fingerprint, c.Query("expires"), c.Query("token")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired audio token"})
		return
	}

	artifact, ok := deps.Cache.Lookup(fingerprint)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio artifact not found"})
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.File(deps.Cache.BlobPath(artifact))
}
