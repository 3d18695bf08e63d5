package userRoutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
	profileService "github.com/nikhil/creatortent/internal/service/users"
)

func UserProfileRoutes(router *mux.Router, c *app.Container) {
	profileService := profileService.NewProfileService(c.Store)

	// Protected routes requiring authentication
	protectedRouter := router.PathPrefix("/user").Subrouter()
	protectedRouter.Use(middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware)

	// User profile routes
	protectedRouter.HandleFunc("/profile", profileService.GetUserProfile).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/profile", profileService.UpdateUserProfile).Methods(http.MethodPut)
}
