package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/service"
)

// SessionCookie is the name of the HttpOnly session cookie.
const SessionCookie = "paywall_session"

// Logging returns a middleware writing one structured line per request.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		// metadata only, never bodies
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Recover returns a middleware that turns panics into a generic 500.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
			}
		}()
		c.Next()
	}
}

// Session resolves the session cookie (or a bearer token) into the request context.
// Requests without a valid session pass through anonymously.
func Session(auth service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(SessionCookie)
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token != "" {
			if addr, err := auth.ParseSession(token); err == nil {
				c.Request = c.Request.WithContext(WithSession(c.Request.Context(), addr))
			}
		}
		c.Next()
	}
}

// isAgent reports whether the caller identifies as an automated agent.
func isAgent(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("User-Agent"), "AI-Agent") || c.GetHeader("X-AI-Agent") != ""
}
