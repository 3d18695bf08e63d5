package emailService

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/inquiry"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/mailbox"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/oauthstate"
	tentService "github.com/nikhil/creatortent/internal/service/tent"
	"github.com/nikhil/creatortent/internal/store"
)

// Store is the persistence the email endpoints need.
type Store interface {
	GetTent(ctx context.Context, id string) (*models.Tent, error)
	UpsertConnection(ctx context.Context, conn *models.EmailConnection) error
	ListConnections(ctx context.Context, userID string) ([]models.EmailConnection, error)
	DeleteConnection(ctx context.Context, userID, id string) error
	SetAutoReply(ctx context.Context, userID, id string, enabled bool) error
	ListInquiries(ctx context.Context, f store.InquiryFilter) ([]models.EmailInquiry, int, error)
	UpdateInquiryStatus(ctx context.Context, userID, id, status string) error
}

// OAuthFlow is one provider's authorization-code flow.
type OAuthFlow interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchEmail(ctx context.Context, tok *oauth2.Token) (string, error)
}

// IMAPVerifier checks app-password logins before they are stored.
type IMAPVerifier interface {
	VerifyIMAP(ctx context.Context, email, password string) error
}

// Pipeline runs syncs and replies on demand.
type Pipeline interface {
	SyncByID(ctx context.Context, userID, connectionID string) (inquiry.Result, error)
	Reply(ctx context.Context, userID, inquiryID, body string) error
}

// Sealer encrypts credentials before they reach the store.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
}

// Notifier delivers notifications to the connection owner.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// EmailService connects mailboxes and exposes the inquiries found in them.
type EmailService struct {
	Store     Store
	Providers map[string]OAuthFlow
	IMAP      IMAPVerifier
	States    oauthstate.Store
	Pipeline  Pipeline
	Cipher    Sealer
	Notifier  Notifier
	Log       *logger.Logger

	// PublicBaseURL is the web app origin the OAuth callback redirects to.
	PublicBaseURL string
}

// Config bundles the collaborators of NewEmailService.
type Config struct {
	Store         Store
	Providers     map[string]OAuthFlow
	IMAP          IMAPVerifier
	States        oauthstate.Store
	Pipeline      Pipeline
	Cipher        Sealer
	Notifier      Notifier
	PublicBaseURL string
}

// NewEmailService initializes a new email service
func NewEmailService(c Config) *EmailService {
	return &EmailService{
		Store:         c.Store,
		Providers:     c.Providers,
		IMAP:          c.IMAP,
		States:        c.States,
		Pipeline:      c.Pipeline,
		Cipher:        c.Cipher,
		Notifier:      c.Notifier,
		Log:           logger.NewLogger("email-service"),
		PublicBaseURL: strings.TrimRight(c.PublicBaseURL, "/"),
	}
}

// IMAPConnectRequest is the body of POST /email/connect/yahoo-imap.
type IMAPConnectRequest struct {
	TentID      string `json:"tent_id"`
	Email       string `json:"email"`
	AppPassword string `json:"app_password"`
}

type settingsRequest struct {
	AutoReplyEnabled *bool `json:"auto_reply_enabled"`
}

type inquiryStatusRequest struct {
	Status string `json:"status"`
}

type replyRequest struct {
	Body string `json:"body"`
}

// checkTent allows an empty tent or one userID belongs to.
func (es *EmailService) checkTent(ctx context.Context, userID, tentID string) error {
	if tentID == "" {
		return nil
	}
	_, err := tentService.LoadForMember(ctx, es.Store, tentID, userID)
	return err
}

// StartConnect saves a state nonce and returns the provider's consent URL.
func (es *EmailService) StartConnect(ctx context.Context, userID, provider, tentID string) (string, error) {
	flow, ok := es.Providers[provider]
	if !ok {
		return "", mailbox.ErrUnsupportedProvider
	}
	if err := es.checkTent(ctx, userID, tentID); err != nil {
		return "", err
	}

	nonce, err := oauthstate.NewNonce()
	if err != nil {
		return "", err
	}
	st := oauthstate.State{UserID: userID, TentID: tentID, Provider: provider}
	if err := es.States.Save(ctx, nonce, st, oauthstate.TTL); err != nil {
		return "", err
	}
	return flow.AuthURL(nonce), nil
}

// FinishConnect completes the OAuth flow started by StartConnect.
func (es *EmailService) FinishConnect(ctx context.Context, provider, nonce, code string) (*models.EmailConnection, error) {
	st, err := es.States.Consume(ctx, nonce)
	if err != nil {
		return nil, err
	}
	if st.Provider != provider {
		return nil, oauthstate.ErrInvalidState
	}
	flow, ok := es.Providers[provider]
	if !ok {
		return nil, mailbox.ErrUnsupportedProvider
	}

	tok, err := flow.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	address, err := flow.FetchEmail(ctx, tok)
	if err != nil {
		return nil, err
	}

	conn := &models.EmailConnection{
		UserID:       st.UserID,
		TentID:       st.TentID,
		Provider:     provider,
		EmailAddress: address,
	}
	if !tok.Expiry.IsZero() {
		conn.TokenExpiry = tok.Expiry.Unix()
	}
	if conn.AccessToken, err = es.Cipher.Encrypt(tok.AccessToken); err != nil {
		return nil, err
	}
	if conn.RefreshToken, err = es.Cipher.Encrypt(tok.RefreshToken); err != nil {
		return nil, err
	}
	if err := es.Store.UpsertConnection(ctx, conn); err != nil {
		return nil, err
	}

	es.connected(ctx, conn)
	return conn, nil
}

// ConnectIMAP verifies and stores a Yahoo app-password connection.
func (es *EmailService) ConnectIMAP(ctx context.Context, userID string, req IMAPConnectRequest) (*models.EmailConnection, error) {
	address := strings.ToLower(strings.TrimSpace(req.Email))
	if address == "" || req.AppPassword == "" {
		return nil, errMissingIMAPFields
	}
	if err := es.checkTent(ctx, userID, req.TentID); err != nil {
		return nil, err
	}
	if err := es.IMAP.VerifyIMAP(ctx, address, req.AppPassword); err != nil {
		return nil, err
	}

	sealed, err := es.Cipher.Encrypt(req.AppPassword)
	if err != nil {
		return nil, err
	}
	conn := &models.EmailConnection{
		UserID:       userID,
		TentID:       req.TentID,
		Provider:     models.ProviderYahoo,
		EmailAddress: address,
		IMAPPassword: sealed,
	}
	if err := es.Store.UpsertConnection(ctx, conn); err != nil {
		return nil, err
	}

	es.connected(ctx, conn)
	return conn, nil
}

var errMissingIMAPFields = errors.New("email and app_password are required")

func (es *EmailService) connected(ctx context.Context, conn *models.EmailConnection) {
	es.Log.WithConnection(conn.ID, conn.Provider).Audit("Email connected", "user_id", conn.UserID)
	if es.Notifier == nil {
		return
	}
	err := es.Notifier.Notify(ctx, models.Notification{
		UserID: conn.UserID,
		TentID: conn.TentID,
		Type:   models.NotifyEmailConnected,
		Title:  "Email connected",
		Body:   conn.EmailAddress + " is now being checked for business inquiries",
	})
	if err != nil {
		es.Log.Warn("Failed to notify email connection", "user_id", conn.UserID, "error", err)
	}
}

// ConnectURL handles GET /email/connect/{provider}?tent_id=
func (es *EmailService) ConnectURL(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	provider := mux.Vars(r)["provider"]

	authURL, err := es.StartConnect(r.Context(), userID, provider, r.URL.Query().Get("tent_id"))
	if err != nil {
		es.respondErr(w, err, "Failed to start email connection")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// Callback handles GET /email/callback/{provider}. It is reached by the
// browser, so it always answers with a redirect to the web app.
func (es *EmailService) Callback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()

	if denied := q.Get("error"); denied != "" {
		es.Log.Info("OAuth consent denied", "provider", provider, "reason", denied)
		es.redirect(w, r, "error", "access_denied")
		return
	}

	conn, err := es.FinishConnect(r.Context(), provider, q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, oauthstate.ErrInvalidState):
		es.redirect(w, r, "error", "invalid_state")
		return
	case err != nil:
		es.Log.Error("OAuth callback failed", "provider", provider, "error", err)
		es.redirect(w, r, "error", "connection_failed")
		return
	}
	es.redirect(w, r, "connected", conn.Provider)
}

func (es *EmailService) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target := es.PublicBaseURL + "/settings?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// ConnectYahooIMAP handles POST /email/connect/yahoo-imap
func (es *EmailService) ConnectYahooIMAP(w http.ResponseWriter, r *http.Request) {
	var req IMAPConnectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conn, err := es.ConnectIMAP(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		es.respondErr(w, err, "Failed to connect Yahoo mailbox")
		return
	}
	httputil.RespondWithJSON(w, http.StatusCreated, conn)
}

// ListConnections handles GET /email/connections
func (es *EmailService) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := es.Store.ListConnections(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		es.respondErr(w, err, "Failed to fetch email connections")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, conns)
}

// DeleteConnection handles DELETE /email/connections/{id}
func (es *EmailService) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := es.Store.DeleteConnection(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		es.respondErr(w, err, "Failed to delete email connection")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// UpdateSettings handles PUT /email/connections/{id}/settings
func (es *EmailService) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || req.AutoReplyEnabled == nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "auto_reply_enabled is required")
		return
	}

	id := mux.Vars(r)["id"]
	if err := es.Store.SetAutoReply(r.Context(), middleware.GetUserID(r.Context()), id, *req.AutoReplyEnabled); err != nil {
		es.respondErr(w, err, "Failed to update email settings")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"id": id, "auto_reply_enabled": *req.AutoReplyEnabled})
}

// SyncConnection handles POST /email/connections/{id}/sync
func (es *EmailService) SyncConnection(w http.ResponseWriter, r *http.Request) {
	res, err := es.Pipeline.SyncByID(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		es.respondErr(w, err, "Email sync failed")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, res)
}

// ListInquiries handles GET /email/inquiries?status=&tent_id=
func (es *EmailService) ListInquiries(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()
	if status := q.Get("status"); status != "" && !isInquiryStatus(status) {
		httputil.RespondWithError(w, http.StatusBadRequest, "Unknown inquiry status")
		return
	}

	page, perPage, offset := httputil.Pagination(r)
	list, total, err := es.Store.ListInquiries(r.Context(), store.InquiryFilter{
		UserID: userID,
		TentID: q.Get("tent_id"),
		Status: q.Get("status"),
		Limit:  perPage,
		Offset: offset,
	})
	if err != nil {
		es.respondErr(w, err, "Failed to fetch inquiries")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, httputil.Page{Items: list, TotalCount: total, Page: page, PerPage: perPage})
}

// UpdateInquiry handles PUT /email/inquiries/{id}
func (es *EmailService) UpdateInquiry(w http.ResponseWriter, r *http.Request) {
	var req inquiryStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || !isInquiryStatus(req.Status) {
		httputil.RespondWithError(w, http.StatusBadRequest, "status must be new, replied or archived")
		return
	}

	id := mux.Vars(r)["id"]
	if err := es.Store.UpdateInquiryStatus(r.Context(), middleware.GetUserID(r.Context()), id, req.Status); err != nil {
		es.respondErr(w, err, "Failed to update inquiry")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

// ReplyInquiry handles POST /email/inquiries/{id}/reply
func (es *EmailService) ReplyInquiry(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	id := mux.Vars(r)["id"]
	if err := es.Pipeline.Reply(r.Context(), middleware.GetUserID(r.Context()), id, req.Body); err != nil {
		es.respondErr(w, err, "Failed to send reply")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.InquiryReplied})
}

func isInquiryStatus(status string) bool {
	switch status {
	case models.InquiryNew, models.InquiryReplied, models.InquiryArchived:
		return true
	}
	return false
}

func (es *EmailService) respondErr(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, tentService.ErrForbidden), errors.Is(err, inquiry.ErrForbidden):
		httputil.RespondWithError(w, http.StatusForbidden, "Not allowed")
	case errors.Is(err, mailbox.ErrUnsupportedProvider):
		httputil.RespondWithError(w, http.StatusBadRequest, "Unsupported or unconfigured email provider")
	case errors.Is(err, mailbox.ErrAuthFailed):
		httputil.RespondWithError(w, http.StatusBadRequest, "The email provider rejected the credentials; reconnect the mailbox")
	case errors.Is(err, inquiry.ErrInactive), errors.Is(err, errMissingIMAPFields):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		es.Log.Error(fallback, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
