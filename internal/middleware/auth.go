// Package middleware provides HTTP middleware for authentication, logging and
// request limits.
package middleware

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/services"
)

// UserContextKey is the key for storing the authenticated username.
const UserContextKey = "user"

// BasicAuth requires HTTP basic credentials matching the configured user.
// limiter may be nil.
func BasicAuth(authService *services.AuthService, limiter *FailureLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if limiter != nil {
			if blocked, retry := limiter.Blocked(clientIP); blocked {
				c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many failed attempts"})
				return
			}
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c)
			return
		}

		if err := authService.Authenticate(username, password); err != nil {
			log.Printf("[API] Failed login for %q from %s", username, clientIP)
			if limiter != nil {
				limiter.Fail(clientIP)
			}
			unauthorized(c)
			return
		}

		if limiter != nil {
			limiter.Reset(clientIP)
		}
		c.Set(UserContextKey, username)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="modbackup"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
