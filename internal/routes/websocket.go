package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/handlers"
	"github.com/nikhil/creatortent/internal/middleware"
)

// RegisterWebSocketRoutes registers all WebSocket related routes
func RegisterWebSocketRoutes(router *mux.Router, c *app.Container) {
	wsHandler := handlers.NewWebSocketHandler(c.Hub, c.Store, c.Config.PublicBaseURL)

	// WebSocket endpoint with authentication via query parameter
	router.Handle("/ws", middleware.WebSocketAuthMiddleware(c.JWT)(http.HandlerFunc(wsHandler.HandleWebSocket))).Methods(http.MethodGet)
}
