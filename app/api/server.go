package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS for browser-based consumers
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/sources", handler.ListSources)
	r.GET("/sources/:id/categories", handler.GetCategories)
	r.GET("/sources/:id/categories/:cid/items", handler.GetItems)
	r.GET("/sources/:id/items/:iid", handler.GetDetail)
	r.GET("/digest", handler.GetDigest)

	r.GET("/health", handler.HealthCheck)
	r.GET("/stats", handler.GetStats)

	// Write endpoints post to external sites; they stay disabled unless an
	// access key is configured.
	if apiAccessKey != "" {
		authed := r.Group("/")
		authed.Use(authMiddleware(apiAccessKey))
		{
			authed.POST("/sources/:id/items/:iid/replies", handler.PostReply)
			authed.POST("/sources/:id/items/:iid/dismiss", handler.DismissItem)
			authed.PUT("/sources/:id/cookies", handler.SaveCookies)
			authed.DELETE("/sources/:id/cookies", handler.RemoveCookies)
		}
		slog.Info("Write endpoints enabled with authentication")
	} else {
		slog.Info("Write endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"sources":    "/sources",
			"categories": "/sources/<id>/categories",
			"items":      "/sources/<id>/categories/<cid>/items?page=N",
			"detail":     "/sources/<id>/items/<iid>?page=N",
			"digest":     "/digest",
			"health":     "/health",
			"stats":      "/stats",
		}
		if apiAccessKey != "" {
			endpoints["reply"] = "/sources/<id>/items/<iid>/replies (POST, requires X-API-Key header)"
			endpoints["dismiss"] = "/sources/<id>/items/<iid>/dismiss (POST, requires X-API-Key header)"
			endpoints["cookies"] = "/sources/<id>/cookies (PUT or DELETE, requires X-API-Key header)"
		}

		c.JSON(200, gin.H{
			"service":     "threadhub",
			"description": "Multi-source discussion aggregation server",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"write_enabled": apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware guards the write endpoints.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
