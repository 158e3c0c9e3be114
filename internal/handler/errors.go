package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"Community_Sync/internal/service"
)

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error(), "requireLogin": true})
	case errors.Is(err, service.ErrOperationInFlight), errors.Is(err, service.ErrIdentityMismatch):
		c.JSON(http.StatusConflict, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrInvalidCommunity):
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrCommunityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrGuardUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrStoreRead), errors.Is(err, service.ErrStoreWrite):
		c.JSON(http.StatusBadGateway, gin.H{"msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
	}
}
