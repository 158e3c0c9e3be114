package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"Community_Sync/internal/middleware"
	"Community_Sync/internal/service"
)

type SessionHandler struct {
	tokens *service.TokenService
}

func NewSessionHandler(tokens *service.TokenService) *SessionHandler {
	return &SessionHandler{tokens: tokens}
}

// State returns the session's membership snapshot.
func (h *SessionHandler) State(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID,
		"userId":    sess.Identity.Current(),
		"state":     sess.State.Snapshot(),
	})
}

// Reload refetches the signed-in user's snippets.
func (h *SessionHandler) Reload(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if err := sess.Membership.LoadMemberships(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.State.Snapshot()})
}

// SignOut revokes the caller's token and clears the session's memberships.
func (h *SessionHandler) SignOut(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	userID := c.GetString(middleware.ContextUserIDKey)

	if err := h.tokens.Logout(c.Request.Context(), userID); err != nil {
		glog.Warningf("session: revoke token for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "logout failed"})
		return
	}
	sess.Identity.SignOut()

	c.JSON(http.StatusOK, gin.H{"msg": "ok", "state": sess.State.Snapshot()})
}
