package handlers

import (
	"errors"
	"net/http"

	"github.com/nikhil/creatortent/internal/auth"
	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/models"
	services "github.com/nikhil/creatortent/internal/service/auth"
)

type AuthHandler struct {
	Service *services.AuthService
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{Service: service}
}

type signupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	ContactNumber string `json:"contact_number"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token       string       `json:"token"`
	UserDetails *models.User `json:"user_details"`
}

// Signup handles the user registration request
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	token, user, err := h.Service.Signup(r.Context(), models.User{
		Email:         req.Email,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		ContactNumber: req.ContactNumber,
	})
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		httputil.RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Service.Log.Error("Signup failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, sessionResponse{Token: token, UserDetails: user})
}

// Login handles the user authentication request
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	token, user, err := h.Service.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.RespondWithError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		h.Service.Log.Error("Login failed", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, sessionResponse{Token: token, UserDetails: user})
}
