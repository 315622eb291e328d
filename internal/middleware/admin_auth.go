package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware guards operator endpoints with a JWT bearer
// token. Operator actions can re-trigger fund movement, so they are
// never left open.
type AdminAuthMiddleware struct {
	logger *logrus.Logger
	secret string
}

// NewAdminAuthMiddleware creates the middleware. An empty secret
// disables all admin endpoints rather than leaving them open.
func NewAdminAuthMiddleware(logger *logrus.Logger, secret string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{logger: logger, secret: secret}
}

// RequireAdminAuth validates the Authorization header.
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.secret == "" {
			a.logger.Warn("Admin auth rejected - no JWT secret configured")
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Admin API is disabled",
				"code":    "ADMIN_DISABLED",
			})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Admin auth failed - missing Authorization header")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization format, need Bearer token",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(a.secret), nil
		})
		if err != nil || !token.Valid {
			a.logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Admin auth failed - invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
