package router

import (
	"github.com/gin-gonic/gin"

	"Community_Sync/internal/handler"
	"Community_Sync/internal/middleware"
	"Community_Sync/internal/pkg"
	"Community_Sync/internal/service"
)

type Deps struct {
	Hub          *service.SessionHub
	Tokens       *pkg.TokenManager
	TokenService *service.TokenService
	// Checker may be nil, then tokens are checked by signature only.
	Checker middleware.TokenChecker
}

func InitRouter(d Deps) *gin.Engine {
	r := gin.Default()

	community := handler.NewCommunityHandler()
	session := handler.NewSessionHandler(d.TokenService)
	token := handler.NewTokenHandler(d.TokenService)

	tokenGroup := r.Group("/api/token")
	{
		tokenGroup.POST("/refresh", token.Refresh)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(d.Tokens, d.Checker), middleware.SessionMiddleware(d.Hub))

	sessionGroup := api.Group("/session")
	{
		sessionGroup.GET("", session.State)
		sessionGroup.POST("/snippets/reload", session.Reload)
		sessionGroup.POST("/signout", session.SignOut)
	}

	communityGroup := api.Group("/community")
	{
		communityGroup.PUT("/:id/view", community.View)
		communityGroup.POST("/:id/toggle", community.Toggle)
	}

	return r
}
