package emailRoutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
	emailService "github.com/nikhil/creatortent/internal/service/email"
)

func EmailRoutes(router *mux.Router, c *app.Container) {
	emailService := emailService.NewEmailService(emailService.Config{
		Store:         c.Store,
		Providers:     c.OAuthFlows(),
		IMAP:          c.Mailboxes,
		States:        c.States,
		Pipeline:      c.Pipeline,
		Cipher:        c.Cipher,
		Notifier:      c.Notifications,
		PublicBaseURL: c.Config.PublicBaseURL,
	})

	// Provider redirects carry no bearer token
	publicRouter := router.PathPrefix("/email/callback").Subrouter()
	publicRouter.HandleFunc("/{provider}", emailService.Callback).Methods(http.MethodGet)

	protectedRouter := router.PathPrefix("/email").Subrouter()
	protectedRouter.Use(middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("/connect/yahoo-imap", emailService.ConnectYahooIMAP).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/connect/{provider}", emailService.ConnectURL).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/connections", emailService.ListConnections).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/connections/{id}", emailService.DeleteConnection).Methods(http.MethodDelete)
	protectedRouter.HandleFunc("/connections/{id}/settings", emailService.UpdateSettings).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/connections/{id}/sync", emailService.SyncConnection).Methods(http.MethodPost)
	protectedRouter.HandleFunc("/inquiries", emailService.ListInquiries).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/inquiries/{id}", emailService.UpdateInquiry).Methods(http.MethodPut)
	protectedRouter.HandleFunc("/inquiries/{id}/reply", emailService.ReplyInquiry).Methods(http.MethodPost)
}
