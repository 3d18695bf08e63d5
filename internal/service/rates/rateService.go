package rateService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nikhil/creatortent/internal/currency"
	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

const maxServiceTypeLen = 100

var ErrInvalidRate = errors.New("invalid rate")

// Store is the persistence the rate endpoints need.
type Store interface {
	ListRates(ctx context.Context, userID string) ([]models.UserRate, error)
	UpsertRate(ctx context.Context, rate *models.UserRate) error
	DeleteRate(ctx context.Context, userID, rateID string) error
}

type RateService struct {
	Store Store
	Log   *logger.Logger
}

// RateRequest is the body of PUT /rates.
type RateRequest struct {
	ServiceType string  `json:"service_type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// RateView is a rate with its amount rendered for display.
type RateView struct {
	models.UserRate
	Formatted string `json:"formatted"`
}

func NewRateService(st Store) *RateService {
	return &RateService{
		Store: st,
		Log:   logger.NewLogger("rate-service"),
	}
}

func view(rate models.UserRate) RateView {
	return RateView{UserRate: rate, Formatted: currency.Format(rate.Amount, rate.Currency)}
}

// Upsert validates req and stores it as userID's rate for its service type.
func (rs *RateService) Upsert(ctx context.Context, userID string, req RateRequest) (*models.UserRate, error) {
	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" || len(serviceType) > maxServiceTypeLen {
		return nil, fmt.Errorf("%w: service_type is required", ErrInvalidRate)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidRate)
	}
	if req.Currency == "" {
		req.Currency = currency.Default
	}
	code, err := currency.Normalize(req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}

	rate := &models.UserRate{
		UserID:      userID,
		ServiceType: serviceType,
		Description: strings.TrimSpace(req.Description),
		Amount:      currency.Round(req.Amount, code),
		Currency:    code,
	}
	if err := rs.Store.UpsertRate(ctx, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// ListRates handles GET /rates
func (rs *RateService) ListRates(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rates, err := rs.Store.ListRates(r.Context(), userID)
	if err != nil {
		rs.Log.Error("Failed to list rates", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch rates")
		return
	}

	views := make([]RateView, 0, len(rates))
	for _, rate := range rates {
		views = append(views, view(rate))
	}
	httputil.RespondWithJSON(w, http.StatusOK, views)
}

// UpsertRate handles PUT /rates
func (rs *RateService) UpsertRate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req RateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rate, err := rs.Upsert(r.Context(), userID, req)
	switch {
	case errors.Is(err, ErrInvalidRate):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		rs.Log.Error("Failed to save rate", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to save rate")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, view(*rate))
}

// DeleteRate handles DELETE /rates/{id}
func (rs *RateService) DeleteRate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id := mux.Vars(r)["id"]

	err := rs.Store.DeleteRate(r.Context(), userID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Rate not found")
		return
	case err != nil:
		rs.Log.Error("Failed to delete rate", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to delete rate")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}
