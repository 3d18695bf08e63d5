package profileService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nikhil/creatortent/internal/currency"
	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

const maxSignatureLength = 1000

// Store is the persistence the profile endpoints need.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
}

type ProfileService struct {
	Store Store
	Log   *logger.Logger
}

func NewProfileService(st Store) *ProfileService {
	return &ProfileService{
		Store: st,
		Log:   logger.NewLogger("profile-service"),
	}
}

type profileResponse struct {
	*models.User
	Name string `json:"name"`
}

// UpdateProfileRequest lists the editable fields. Omitted fields keep their value.
type UpdateProfileRequest struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	ContactNumber   *string `json:"contact_number"`
	DisplayCurrency *string `json:"display_currency"`
	ReplySignature  *string `json:"reply_signature"`
}

func (profile *ProfileService) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := profile.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		profile.Log.Error("Failed to load profile", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch user details")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, profileResponse{User: user, Name: user.FullName()})
}

func (profile *ProfileService) UpdateUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req UpdateProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := profile.UpdateProfile(r.Context(), userID, req)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, errInvalidProfile):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		profile.Log.Error("Failed to update profile", "user_id", userID, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to update user details")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, profileResponse{User: user, Name: user.FullName()})
}

var errInvalidProfile = errors.New("invalid profile")

// UpdateProfile applies req to the stored user.
func (profile *ProfileService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.User, error) {
	user, err := profile.Store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.ContactNumber != nil {
		user.ContactNumber = strings.TrimSpace(*req.ContactNumber)
	}
	if req.DisplayCurrency != nil {
		code, err := currency.Normalize(*req.DisplayCurrency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidProfile, err)
		}
		user.DisplayCurrency = code
	}
	if req.ReplySignature != nil {
		if len(*req.ReplySignature) > maxSignatureLength {
			return nil, fmt.Errorf("%w: reply signature is too long", errInvalidProfile)
		}
		user.ReplySignature = *req.ReplySignature
	}

	if err := profile.Store.UpdateUserProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
