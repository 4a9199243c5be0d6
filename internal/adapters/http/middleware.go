package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const claimsKey = "device_claims"

// BearerMiddleware requires a valid signed token in the Authorization header.
// A missing token is 401, a bad one 403.
func BearerMiddleware(tokens auth.TokenValidator, now core.Clock) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, _ := strings.Cut(header, " ")
		if token == "" || !strings.EqualFold(scheme, "Bearer") {
			log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Msg("token missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication token is missing."})
			return
		}
		claims, err := tokens.Parse(strings.TrimSpace(token), now())
		if err != nil {
			log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Token is invalid or expired."})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}
