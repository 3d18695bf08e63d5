package invoiceService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	tentService "github.com/nikhil/creatortent/internal/service/tent"
	"github.com/nikhil/creatortent/internal/store"
)

const numberRetries = 3

// Store is the persistence the invoice endpoints need.
type Store interface {
	GetTent(ctx context.Context, id string) (*models.Tent, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error)
	UpdateInvoice(ctx context.Context, inv *models.Invoice, from string) error
	UpdateInvoiceStatus(ctx context.Context, id, from, to string) error
	DeleteInvoice(ctx context.Context, id string) error
	NextInvoiceNumber(ctx context.Context, tentID string, at time.Time) (string, error)
	InvoiceTotals(ctx context.Context, tentID string) ([]models.InvoiceStatusTotal, error)
}

// Notifier delivers notifications to the other tent member.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// InvoiceService handles invoice-related operations
type InvoiceService struct {
	Store    Store
	Notifier Notifier
	Log      *logger.Logger

	now func() time.Time
}

// StatusRequest is the body of POST /invoice/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// NewInvoiceService initializes a new invoice service
func NewInvoiceService(st Store, notifier Notifier) *InvoiceService {
	return &InvoiceService{
		Store:    st,
		Notifier: notifier,
		Log:      logger.NewLogger("invoice-service"),
		now:      time.Now,
	}
}

// Create builds a draft invoice in tentID. A missing invoice number is
// generated and regenerated if another invoice took it first.
func (is *InvoiceService) Create(ctx context.Context, userID, tentID string, req InvoiceRequest) (*models.Invoice, error) {
	tent, err := tentService.LoadForMember(ctx, is.Store, tentID, userID)
	if err != nil {
		return nil, err
	}

	inv := &models.Invoice{TentID: tentID, CreatedBy: userID, Status: models.InvoiceDraft}
	if err := req.Apply(inv); err != nil {
		return nil, err
	}

	generated := inv.InvoiceNumber == ""
	for attempt := 0; ; attempt++ {
		if generated {
			if inv.InvoiceNumber, err = is.Store.NextInvoiceNumber(ctx, tentID, is.now()); err != nil {
				return nil, err
			}
		}
		inv.ID = ""
		err = is.Store.CreateInvoice(ctx, inv)
		if !generated || !errors.Is(err, store.ErrConflict) || attempt+1 >= numberRetries {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	is.Log.WithTent(tentID).Info("Invoice created", "invoice_id", inv.ID, "user_id", userID, "total", inv.Total)
	is.notifyOther(ctx, tent, userID, models.NotifyInvoiceCreated,
		"New invoice "+inv.InvoiceNumber, fmt.Sprintf("Invoice for %s was created", inv.ClientName))
	return inv, nil
}

// Get returns an invoice to members of its tent.
func (is *InvoiceService) Get(ctx context.Context, userID, invoiceID string) (*models.Invoice, *models.Tent, error) {
	inv, err := is.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	tent, err := tentService.LoadForMember(ctx, is.Store, inv.TentID, userID)
	if err != nil {
		return nil, nil, err
	}
	return inv, tent, nil
}

// Update replaces the editable fields. Editing a rejected invoice returns it to draft.
func (is *InvoiceService) Update(ctx context.Context, userID, invoiceID string, req InvoiceRequest) (*models.Invoice, error) {
	inv, tent, err := is.Get(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceRejected {
		return nil, ErrNotEditable
	}

	from := inv.Status
	if err := req.Apply(inv); err != nil {
		return nil, err
	}
	inv.Status = models.InvoiceDraft
	if err := is.Store.UpdateInvoice(ctx, inv, from); err != nil {
		return nil, err
	}

	is.notifyOther(ctx, tent, userID, models.NotifyInvoiceUpdated,
		"Invoice "+inv.InvoiceNumber+" updated", "An invoice in "+tent.Name+" was edited")
	return inv, nil
}

// SetStatus moves an invoice through the approval workflow.
func (is *InvoiceService) SetStatus(ctx context.Context, userID, invoiceID, to string) (*models.Invoice, error) {
	inv, tent, err := is.Get(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(inv, userID, to); err != nil {
		return nil, err
	}
	if err := is.Store.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, to); err != nil {
		return nil, err
	}

	from := inv.Status
	inv.Status = to
	is.Log.WithTent(inv.TentID).Info("Invoice status changed", "invoice_id", inv.ID, "from", from, "to", to, "user_id", userID)
	is.notifyOther(ctx, tent, userID, models.NotifyInvoiceStatus,
		"Invoice "+inv.InvoiceNumber+" is "+statusLabel(to),
		fmt.Sprintf("Status changed from %s to %s", statusLabel(from), statusLabel(to)))
	return inv, nil
}

// Delete removes a draft invoice.
func (is *InvoiceService) Delete(ctx context.Context, userID, invoiceID string) error {
	inv, tent, err := is.Get(ctx, userID, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != models.InvoiceDraft {
		return ErrNotDeletable
	}
	if err := is.Store.DeleteInvoice(ctx, inv.ID); err != nil {
		return err
	}
	is.notifyOther(ctx, tent, userID, models.NotifyInvoiceDeleted,
		"Invoice "+inv.InvoiceNumber+" deleted", "A draft invoice in "+tent.Name+" was deleted")
	return nil
}

func statusLabel(status string) string {
	if status == models.InvoicePendingApproval {
		return "pending approval"
	}
	return status
}

func (is *InvoiceService) notifyOther(ctx context.Context, tent *models.Tent, actorID, kind, title, body string) {
	other := tent.OtherMember(actorID)
	if other == nil || is.Notifier == nil {
		return
	}
	err := is.Notifier.Notify(ctx, models.Notification{
		UserID: other.UserID,
		TentID: tent.ID,
		Type:   kind,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		is.Log.Warn("Failed to notify tent member", "tent_id", tent.ID, "type", kind, "error", err)
	}
}

// CreateInvoice handles POST /tent/{id}/invoices
func (is *InvoiceService) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := is.Create(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		is.respondErr(w, err, "Failed to create invoice")
		return
	}
	httputil.RespondWithJSON(w, http.StatusCreated, inv)
}

// ListInvoices handles GET /tent/{id}/invoices?status=
func (is *InvoiceService) ListInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tentID := mux.Vars(r)["id"]
	if _, err := tentService.LoadForMember(ctx, is.Store, tentID, middleware.GetUserID(ctx)); err != nil {
		is.respondErr(w, err, "Failed to fetch invoices")
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && !isKnownStatus(status) {
		httputil.RespondWithError(w, http.StatusBadRequest, "Unknown invoice status")
		return
	}

	page, perPage, offset := httputil.Pagination(r)
	invoices, total, err := is.Store.ListInvoices(ctx, store.InvoiceFilter{TentID: tentID, Status: status, Limit: perPage, Offset: offset})
	if err != nil {
		is.respondErr(w, err, "Failed to fetch invoices")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, httputil.Page{Items: invoices, TotalCount: total, Page: page, PerPage: perPage})
}

// InvoiceSummary handles GET /tent/{id}/invoices/summary
func (is *InvoiceService) InvoiceSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tentID := mux.Vars(r)["id"]
	if _, err := tentService.LoadForMember(ctx, is.Store, tentID, middleware.GetUserID(ctx)); err != nil {
		is.respondErr(w, err, "Failed to summarize invoices")
		return
	}

	totals, err := is.Store.InvoiceTotals(ctx, tentID)
	if err != nil {
		is.respondErr(w, err, "Failed to summarize invoices")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, Summarize(totals))
}

// GetInvoice handles GET /invoice/{id}
func (is *InvoiceService) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, _, err := is.Get(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		is.respondErr(w, err, "Failed to fetch invoice")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, inv)
}

// UpdateInvoice handles PUT /invoice/{id}
func (is *InvoiceService) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := is.Update(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		is.respondErr(w, err, "Failed to update invoice")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, inv)
}

// UpdateInvoiceStatus handles POST /invoice/{id}/status
func (is *InvoiceService) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := is.SetStatus(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req.Status)
	if err != nil {
		is.respondErr(w, err, "Failed to update invoice status")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, inv)
}

// DeleteInvoice handles DELETE /invoice/{id}
func (is *InvoiceService) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := is.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		is.respondErr(w, err, "Failed to delete invoice")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func isKnownStatus(status string) bool {
	switch status {
	case models.InvoiceDraft, models.InvoicePendingApproval, models.InvoiceApproved,
		models.InvoiceRejected, models.InvoicePaid, models.InvoiceCancelled:
		return true
	}
	return false
}

func (is *InvoiceService) respondErr(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrConflict):
		httputil.RespondWithError(w, http.StatusConflict, "Invoice was changed concurrently or the number is taken")
	case errors.Is(err, tentService.ErrForbidden), errors.Is(err, ErrSelfApproval):
		httputil.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidInvoice), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotEditable), errors.Is(err, ErrNotDeletable):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		is.Log.Error(fallback, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
