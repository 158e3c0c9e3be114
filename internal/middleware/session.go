package middleware

import (
	"github.com/gin-gonic/gin"

	"Community_Sync/internal/service"
)

const (
	SessionHeader     = "X-Session-ID"
	ContextSessionKey = "session"
)

// SessionMiddleware attaches the caller's session and pushes the identity
// resolved by AuthMiddleware into it. A session id owned by another identity
// is answered with a new session, so the response header always carries the
// id the client must use from then on.
func SessionMiddleware(hub *service.SessionHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(ContextUserIDKey)
		sess := hub.Open(c.GetHeader(SessionHeader), uid)
		c.Header(SessionHeader, sess.ID)
		sess.Identity.Set(uid)
		c.Set(ContextSessionKey, sess)
		c.Next()
	}
}

func SessionFrom(c *gin.Context) *service.Session {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*service.Session)
	return sess
}
