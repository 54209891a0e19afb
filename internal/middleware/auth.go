package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"ideabox/internal/auth"
	"ideabox/internal/session"

	"github.com/gin-gonic/gin"
)

const SessionKey = "session"

// bearerToken reads "Authorization: Bearer <token>". Browsers cannot set headers on
// a websocket handshake, so upgrades may pass ?token= instead.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": message})
}

// Authenticate resolves the bearer token to a live session and stores it on the
// context. Missing, malformed, expired or revoked tokens get 401.
func Authenticate(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		s, err := m.Resume(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, session.ErrNotFound):
			abortUnauthenticated(c, "invalid or expired token")
			return
		default:
			log.Printf("session lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "session store unavailable"})
			return
		}

		c.Set(SessionKey, s)
		c.Next()
	}
}

// AdminRequired must run after Authenticate.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			abortUnauthenticated(c, "missing bearer token")
			return
		}
		if !s.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "administrator rights required"})
			return
		}
		c.Next()
	}
}

func CurrentSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return session.Session{}, false
	}
	s, ok := v.(session.Session)
	return s, ok
}
