package notificationService

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

// EventNotification is the websocket event type carrying a Notification.
const EventNotification = "notification"

// Store is the persistence the notification service needs.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// Pusher delivers events to a user's live connections.
type Pusher interface {
	PushEvent(userID string, event models.Event) (bool, error)
}

// NotificationService stores notifications and pushes them over the hub.
type NotificationService struct {
	Store Store
	Hub   Pusher
	Log   *logger.Logger
}

// NewNotificationService initializes a new notification service
func NewNotificationService(st Store, hub Pusher) *NotificationService {
	return &NotificationService{
		Store: st,
		Hub:   hub,
		Log:   logger.NewLogger("notification-service"),
	}
}

// Notify saves n and pushes it to the recipient when connected. Push
// failures are logged; the stored notification is still returned by List.
func (ns *NotificationService) Notify(ctx context.Context, n models.Notification) error {
	if err := ns.Store.CreateNotification(ctx, &n); err != nil {
		ns.Log.Error("Failed to store notification", "user_id", n.UserID, "type", n.Type, "error", err)
		return err
	}

	if ns.Hub == nil {
		return nil
	}
	delivered, err := ns.Hub.PushEvent(n.UserID, models.Event{Type: EventNotification, TentID: n.TentID, Payload: n})
	if err != nil {
		ns.Log.Warn("Failed to push notification", "user_id", n.UserID, "error", err)
		return nil
	}
	ns.Log.Debug("Notification sent", "user_id", n.UserID, "type", n.Type, "live", delivered)
	return nil
}

// ListNotifications handles GET /notifications?unread=true
func (ns *NotificationService) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	page, perPage, offset := httputil.Pagination(r)
	unread := r.URL.Query().Get("unread") == "true"

	list, total, err := ns.Store.ListNotifications(r.Context(), userID, unread, perPage, offset)
	if err != nil {
		ns.Log.Error("Failed to list notifications", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, httputil.Page{Items: list, TotalCount: total, Page: page, PerPage: perPage})
}

// MarkRead handles POST /notifications/{id}/read
func (ns *NotificationService) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := mux.Vars(r)["id"]

	err := ns.Store.MarkNotificationRead(r.Context(), userID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Notification not found")
		return
	case err != nil:
		ns.Log.Error("Failed to mark notification read", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to update notification")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": "read"})
}

// MarkAllRead handles POST /notifications/read-all
func (ns *NotificationService) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	n, err := ns.Store.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		ns.Log.Error("Failed to mark notifications read", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to update notifications")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
