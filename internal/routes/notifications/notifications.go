package notificationRoutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
)

func NotificationRoutes(router *mux.Router, c *app.Container) {
	protectedRouter := router.PathPrefix("/notifications").Subrouter()
	protectedRouter.Use(middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("", c.Notifications.ListNotifications).Methods(http.MethodGet)
	// read-all before {id} so it is not taken for an id
	protectedRouter.HandleFunc("/read-all", c.Notifications.MarkAllRead).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/{id}/read", c.Notifications.MarkRead).Methods(http.MethodPost)
}
