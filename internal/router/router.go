package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rps-backend/internal/config"
	"rps-backend/internal/handlers"
	"rps-backend/internal/middleware"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		// Priority 1: Check environment variable (highest priority)
		envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if envOrigins != "" {
			origins := strings.Split(envOrigins, ",")
			allowedOrigins = make([]string, 0, len(origins))
			for _, o := range origins {
				trimmed := strings.TrimSpace(o)
				if trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			// Priority 2: Read from YAML config
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			// Priority 3: Default - allow all origins
			allowedOrigins = []string{"*"}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
					"remote_addr":     c.ClientIP(),
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SetupRouter(wagerHandler *handlers.WagerHandler) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	logger := logrus.New()

	adminSecret := ""
	if config.AppConfig != nil {
		adminSecret = config.AppConfig.Admin.JWTSecret
	}
	adminAuth := middleware.NewAdminAuthMiddleware(logger, adminSecret)

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// ============ Health Check ============
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "rps-backend",
		})
	})

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	api := r.Group("/api")
	{
		api.POST("/escrows", wagerHandler.CreateEscrowHandler)

		api.POST("/wagers", wagerHandler.CreateWagerHandler)
		api.GET("/wagers", wagerHandler.ListWagersHandler)
		api.GET("/wagers/:id", wagerHandler.GetWagerHandler)
		api.POST("/wagers/:id/take", wagerHandler.TakeWagerHandler)
		api.POST("/wagers/:id/resolve", wagerHandler.ResolveWagerHandler)
		api.POST("/wagers/:id/complete", wagerHandler.CompleteWagerHandler)
	}

	// ============ Admin Routes (JWT protected) ============
	// Re-runs resolution for a wager whose payout failed earlier.
	admin := r.Group("/api/admin", adminAuth.RequireAdminAuth())
	{
		admin.POST("/wagers/:id/complete", wagerHandler.ResolveAndCompleteHandler)
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path

		if len(path) >= 4 && path[:4] != "/api" {
			c.JSON(http.StatusNotFound, gin.H{
				"message":    "Endpoint not found",
				"path":       path,
				"suggestion": "Check /api endpoints for available APIs",
			})
			return
		}

		c.JSON(http.StatusNotFound, gin.H{
			"message":    "API endpoint not found",
			"path":       path,
			"suggestion": "Check documentation for available /api endpoints",
		})
	})

	return r
}
