package invoiceRoutes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/middleware"
	invoiceService "github.com/nikhil/creatortent/internal/service/invoice"
)

func InvoiceRoutes(router *mux.Router, c *app.Container) {
	invoiceService := invoiceService.NewInvoiceService(c.Store, c.Notifications)
	protect := []mux.MiddlewareFunc{middleware.AuthMiddleware(c.JWT), c.Limiter.Handler, middleware.ResponseWrapperMiddleware}

	// Invoices scoped to a tent
	tentRouter := router.PathPrefix("/tent/{id}/invoices").Subrouter()
	tentRouter.Use(protect...)
	tentRouter.HandleFunc("", invoiceService.CreateInvoice).Methods(http.MethodPost)
	tentRouter.HandleFunc("", invoiceService.ListInvoices).Methods(http.MethodGet)
	tentRouter.HandleFunc("/summary", invoiceService.InvoiceSummary).Methods(http.MethodGet)

	invoiceRouter := router.PathPrefix("/invoice/{id}").Subrouter()
	invoiceRouter.Use(protect...)
	invoiceRouter.HandleFunc("", invoiceService.GetInvoice).Methods(http.MethodGet)
	invoiceRouter.HandleFunc("", invoiceService.UpdateInvoice).Methods(http.MethodPut)
	invoiceRouter.HandleFunc("", invoiceService.DeleteInvoice).Methods(http.MethodDelete)
	invoiceRouter.HandleFunc("/status", invoiceService.UpdateInvoiceStatus).Methods(http.MethodPost)
}
