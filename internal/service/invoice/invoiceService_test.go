package invoiceService

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/creatortent/internal/auth"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

type memStore struct {
	tent     models.Tent
	invoices map[string]*models.Invoice
	seq      int
	// raceStatus, when set, makes status-guarded writes lose a race.
	raceStatus bool
}

func newMemStore() *memStore {
	return &memStore{
		tent: models.Tent{ID: "t1", Name: "Launch", CreatedBy: "alice", Members: []models.TentMember{
			{TentID: "t1", UserID: "alice", Role: models.RoleManager},
			{TentID: "t1", UserID: "bob", Role: models.RoleClient},
		}},
		invoices: map[string]*models.Invoice{},
	}
}

func (m *memStore) GetTent(_ context.Context, id string) (*models.Tent, error) {
	if id != m.tent.ID {
		return nil, store.ErrNotFound
	}
	cp := m.tent
	return &cp, nil
}

func (m *memStore) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	for _, existing := range m.invoices {
		if existing.TentID == inv.TentID && existing.InvoiceNumber == inv.InvoiceNumber {
			return store.ErrConflict
		}
	}
	m.seq++
	inv.ID = fmt.Sprintf("inv-%d", m.seq)
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *memStore) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memStore) ListInvoices(_ context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error) {
	var out []models.Invoice
	for _, inv := range m.invoices {
		if inv.TentID == f.TentID && (f.Status == "" || inv.Status == f.Status) {
			out = append(out, *inv)
		}
	}
	return out, len(out), nil
}

func (m *memStore) UpdateInvoice(_ context.Context, inv *models.Invoice, from string) error {
	if m.raceStatus || m.invoices[inv.ID].Status != from {
		return store.ErrConflict
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *memStore) UpdateInvoiceStatus(_ context.Context, id, from, to string) error {
	inv := m.invoices[id]
	if m.raceStatus || inv.Status != from {
		return store.ErrConflict
	}
	inv.Status = to
	return nil
}

func (m *memStore) DeleteInvoice(_ context.Context, id string) error {
	delete(m.invoices, id)
	return nil
}

func (m *memStore) NextInvoiceNumber(_ context.Context, tentID string, at time.Time) (string, error) {
	return fmt.Sprintf("INV-%s-%04d", at.UTC().Format("200601"), len(m.invoices)+1), nil
}

func (m *memStore) InvoiceTotals(_ context.Context, tentID string) ([]models.InvoiceStatusTotal, error) {
	sums := map[string]*models.InvoiceStatusTotal{}
	var out []models.InvoiceStatusTotal
	for _, inv := range m.invoices {
		key := inv.Status + inv.Currency
		if sums[key] == nil {
			sums[key] = &models.InvoiceStatusTotal{Status: inv.Status, Currency: inv.Currency}
		}
		sums[key].Count++
		sums[key].Total += inv.Total
	}
	for _, s := range sums {
		out = append(out, *s)
	}
	return out, nil
}

type recordingNotifier struct {
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func newTestService() (*InvoiceService, *memStore, *recordingNotifier) {
	st := newMemStore()
	n := &recordingNotifier{}
	svc := NewInvoiceService(st, n)
	svc.Log = logger.NewNop()
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	return svc, st, n
}

func call(h http.HandlerFunc, method, userID, id, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req = req.WithContext(middleware.WithClaims(req.Context(), &auth.Claims{UserID: userID}))
	req = mux.SetURLVars(req, map[string]string{"id": id})
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

const createBody = `{"client_name":"Acme","currency":"USD","issue_date":1700000000,"due_date":1700000000,
	"tax_rate":10,"items":[{"description":"Video","quantity":2,"unit_price":250}]}`

func createInvoice(t *testing.T, svc *InvoiceService, userID string) models.Invoice {
	t.Helper()
	rec := call(svc.CreateInvoice, http.MethodPost, userID, "t1", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Data models.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestCreateInvoiceGeneratesNumberAndNotifies(t *testing.T) {
	svc, _, n := newTestService()

	inv := createInvoice(t, svc, "alice")
	assert.Equal(t, "INV-202403-0001", inv.InvoiceNumber)
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, 550.0, inv.Total)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "bob", n.sent[0].UserID)
	assert.Equal(t, models.NotifyInvoiceCreated, n.sent[0].Type)
}

func TestCreateInvoiceRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService()

	assert.Equal(t, http.StatusForbidden, call(svc.CreateInvoice, http.MethodPost, "mallory", "t1", createBody).Code)
	assert.Equal(t, http.StatusNotFound, call(svc.CreateInvoice, http.MethodPost, "alice", "nope", createBody).Code)
	assert.Equal(t, http.StatusBadRequest, call(svc.CreateInvoice, http.MethodPost, "alice", "t1",
		`{"client_name":"Acme","currency":"USD","issue_date":1,"due_date":2,"items":[]}`).Code)
}

func TestInvoiceApprovalFlow(t *testing.T) {
	svc, _, n := newTestService()
	inv := createInvoice(t, svc, "alice")

	status := func(user, to string) int {
		return call(svc.UpdateInvoiceStatus, http.MethodPost, user, inv.ID, `{"status":"`+to+`"}`).Code
	}

	assert.Equal(t, http.StatusBadRequest, status("alice", models.InvoicePaid))
	assert.Equal(t, http.StatusOK, status("alice", models.InvoicePendingApproval))
	assert.Equal(t, http.StatusForbidden, status("alice", models.InvoiceApproved))
	assert.Equal(t, http.StatusOK, status("bob", models.InvoiceRejected))

	// editing a rejected invoice sends it back to draft
	rec := call(svc.UpdateInvoice, http.MethodPut, "alice", inv.ID, createBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)

	assert.Equal(t, http.StatusOK, status("alice", models.InvoicePendingApproval))
	assert.Equal(t, http.StatusOK, status("bob", models.InvoiceApproved))
	assert.Equal(t, http.StatusBadRequest, call(svc.UpdateInvoice, http.MethodPut, "alice", inv.ID, createBody).Code)
	assert.Equal(t, http.StatusOK, status("alice", models.InvoicePaid))

	last := n.sent[len(n.sent)-1]
	assert.Equal(t, "bob", last.UserID)
	assert.Equal(t, models.NotifyInvoiceStatus, last.Type)
	assert.Equal(t, "Status changed from approved to paid", last.Body)
}

func TestInvoiceStatusRaceIsConflict(t *testing.T) {
	svc, st, _ := newTestService()
	inv := createInvoice(t, svc, "alice")
	st.raceStatus = true

	rec := call(svc.UpdateInvoiceStatus, http.MethodPost, "alice", inv.ID, `{"status":"pending_approval"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEditRacingSubmitIsConflict(t *testing.T) {
	svc, st, _ := newTestService()
	inv := createInvoice(t, svc, "alice")
	st.raceStatus = true

	rec := call(svc.UpdateInvoice, http.MethodPut, "bob", inv.ID, createBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	svc, st, _ := newTestService()
	inv := createInvoice(t, svc, "alice")
	other := createInvoice(t, svc, "bob")
	assert.Equal(t, "INV-202403-0002", other.InvoiceNumber)

	require.Equal(t, http.StatusOK, call(svc.UpdateInvoiceStatus, http.MethodPost, "bob", other.ID, `{"status":"pending_approval"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(svc.DeleteInvoice, http.MethodDelete, "bob", other.ID, "").Code)
	assert.Equal(t, http.StatusForbidden, call(svc.DeleteInvoice, http.MethodDelete, "mallory", inv.ID, "").Code)
	assert.Equal(t, http.StatusOK, call(svc.DeleteInvoice, http.MethodDelete, "bob", inv.ID, "").Code)
	assert.NotContains(t, st.invoices, inv.ID)
}

func TestListAndSummary(t *testing.T) {
	svc, _, _ := newTestService()
	inv := createInvoice(t, svc, "alice")
	createInvoice(t, svc, "alice")
	require.Equal(t, http.StatusOK, call(svc.UpdateInvoiceStatus, http.MethodPost, "alice", inv.ID, `{"status":"pending_approval"}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/tent/t1/invoices?status=draft", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &auth.Claims{UserID: "bob"}))
	req = mux.SetURLVars(req, map[string]string{"id": "t1"})
	rec := httptest.NewRecorder()
	svc.ListInvoices(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":1`)

	rec = call(svc.InvoiceSummary, http.MethodGet, "bob", "t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "$550.00", body.Data.Outstanding["USD"])
	assert.Len(t, body.Data.ByStatus, 2)

	assert.Equal(t, http.StatusForbidden, call(svc.InvoiceSummary, http.MethodGet, "mallory", "t1", "").Code)
}
