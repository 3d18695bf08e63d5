package authRoute

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/handlers"
	"github.com/nikhil/creatortent/internal/middleware"
	services "github.com/nikhil/creatortent/internal/service/auth"
)

func RegisterAuthRoutes(router *mux.Router, c *app.Container) {
	authService := services.NewAuthService(c.Store, c.JWT)
	authHandler := handlers.NewAuthHandler(authService)

	// Public routes without auth middleware
	publicRouter := router.PathPrefix("/auth").Subrouter()
	publicRouter.Use(c.Limiter.Handler, middleware.ResponseWrapperMiddleware)
	publicRouter.HandleFunc("/signup", authHandler.Signup).Methods(http.MethodPost)
	publicRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
}
