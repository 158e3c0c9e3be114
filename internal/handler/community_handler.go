package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Community_Sync/internal/middleware"
	"Community_Sync/internal/model"
	"Community_Sync/internal/service"
)

type CommunityHandler struct{}

type ToggleReq struct {
	Joined *bool `json:"joined" binding:"required"`
}

func NewCommunityHandler() *CommunityHandler {
	return &CommunityHandler{}
}

// View makes the community the subject of the session's view.
func (h *CommunityHandler) View(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	community, err := sess.Communities.ViewCommunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"community": community,
		"joined":    sess.State.IsJoined(community.ID),
	})
}

// Toggle joins or leaves. joined is what the client currently shows.
func (h *CommunityHandler) Toggle(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	var req ToggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	ctx := c.Request.Context()
	callerID := c.GetString(middleware.ContextUserIDKey)
	community := model.Community{ID: c.Param("id")}
	// anonymous callers are turned away before anything is read
	if callerID != "" {
		var err error
		community, err = sess.Communities.ViewCommunity(ctx, community.ID)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	outcome, err := sess.Membership.ToggleMembershipAs(ctx, callerID, community, *req.Joined)
	if err != nil {
		writeError(c, err)
		return
	}
	if outcome == service.OutcomeLoginRequired {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "login required", "requireLogin": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome,
		"state":   sess.State.Snapshot(),
	})
}
