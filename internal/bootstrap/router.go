package bootstrap

import (
	"firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	httpapi "github.com/kanbanlab/kanban-client/internal/api/http"
	"github.com/kanbanlab/kanban-client/internal/api/http/middleware"
	"github.com/kanbanlab/kanban-client/internal/board/store"
	"github.com/kanbanlab/kanban-client/internal/identity"
	"github.com/kanbanlab/kanban-client/internal/identity/service"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	AuthClient  *auth.Client
	Session     *service.Session
	Google      *identity.GoogleOAuth
	Store       *store.Store
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.Default())
	r.Use(middleware.RequestIDMiddleware())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")

	authHandler := httpapi.NewAuthHandler(dep.Session, dep.Google)
	authHandler.RegisterRoutes(api)

	board := api.Group("")
	board.Use(middleware.FirebaseAuthMiddleware(dep.AuthClient, dep.Session))

	boardHandler := httpapi.NewBoardHandler(dep.Store)
	boardHandler.RegisterRoutes(board)

	return r
}
