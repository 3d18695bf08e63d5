package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	tentService "github.com/nikhil/creatortent/internal/service/tent"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *models.Hub
	tents    tentService.TentLoader
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewWebSocketHandler creates a handler that registers clients on hub.
// Upgrades are accepted from allowedOrigin, or from any origin when it is empty.
func NewWebSocketHandler(hub *models.Hub, tents tentService.TentLoader, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		tents: tents,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		log: logger.NewLogger("websocket"),
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimRight(allowed, "/")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowed == "" || origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Scheme+"://"+u.Host, allowed)
	}
}

// HandleWebSocket handles GET /ws?tent_id=. Without a tent the client only
// receives events addressed to its user.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		httputil.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tentID := r.URL.Query().Get("tent_id")
	if tentID != "" {
		if _, err := tentService.LoadForMember(r.Context(), h.tents, tentID, userID); err != nil {
			httputil.RespondWithError(w, http.StatusForbidden, "Not a member of this tent")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Error upgrading connection", "user_id", userID, "error", err)
		return
	}

	client := h.hub.NewClient(conn, userID, tentID)
	h.hub.Register(client)
	h.log.Debug("Client connected", "user_id", userID, "tent_id", tentID)

	go client.WritePump()
	go client.ReadPump()
}
