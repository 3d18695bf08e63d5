package tentService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nikhil/creatortent/internal/httputil"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/middleware"
	"github.com/nikhil/creatortent/internal/models"
	"github.com/nikhil/creatortent/internal/store"
)

const (
	inviteCodeLength  = 8
	inviteCodeRetries = 5
	maxNameLength     = 100
	maxDescLength     = 500
)

var (
	ErrTentFull    = errors.New("tent is full")
	ErrForbidden   = errors.New("you are not a member of this tent")
	ErrNotCreator  = errors.New("only the tent creator can do this")
	ErrInvalidRole = errors.New("role must be manager or client")
	ErrInvalidName = errors.New("name is required and must be at most 100 characters")
	ErrInvalidDesc = errors.New("description must be at most 500 characters")
)

// Store is the persistence the tent endpoints need.
type Store interface {
	CreateTent(ctx context.Context, tent *models.Tent, creatorRole string) error
	GetTent(ctx context.Context, id string) (*models.Tent, error)
	GetTentByInviteCode(ctx context.Context, code string) (*models.Tent, error)
	ListUserTents(ctx context.Context, userID string, limit, offset int) ([]models.Tent, int, error)
	JoinTent(ctx context.Context, tentID, userID string, decide store.JoinDecision) (*models.TentMember, bool, error)
	UpdateTent(ctx context.Context, tent *models.Tent) error
	UpdateInviteCode(ctx context.Context, tentID, code string) error
	DeleteTent(ctx context.Context, tentID string) error
	RemoveMember(ctx context.Context, tentID, userID string) (int, error)
}

// Notifier delivers notifications to tent members.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// TentLoader loads a tent together with its members.
type TentLoader interface {
	GetTent(ctx context.Context, id string) (*models.Tent, error)
}

// LoadForMember returns the tent when userID belongs to it, ErrForbidden when
// it exists but userID is not a member.
func LoadForMember(ctx context.Context, st TentLoader, tentID, userID string) (*models.Tent, error) {
	tent, err := st.GetTent(ctx, tentID)
	if err != nil {
		return nil, err
	}
	if !tent.HasMember(userID) {
		return nil, ErrForbidden
	}
	return tent, nil
}

// TentService handles tent-related operations
type TentService struct {
	Store    Store
	Notifier Notifier
	Log      *logger.Logger

	newCode func() string
}

// CreateTentRequest represents the request body for tent creation
type CreateTentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Role        string `json:"role"`
}

// UpdateTentRequest represents the request body for tent updates
type UpdateTentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// JoinTentRequest carries the invite code shared by the tent creator.
type JoinTentRequest struct {
	InviteCode string `json:"invite_code"`
}

// NewTentService initializes a new tent service
func NewTentService(st Store, notifier Notifier) *TentService {
	return &TentService{
		Store:    st,
		Notifier: notifier,
		Log:      logger.NewLogger("tent-service"),
		newCode:  NewInviteCode,
	}
}

// NewInviteCode returns a random 8-character upper-case code.
func NewInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:inviteCodeLength]
}

func validateDetails(name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || len(name) > maxNameLength {
		return "", "", ErrInvalidName
	}
	if len(description) > maxDescLength {
		return "", "", ErrInvalidDesc
	}
	return name, description, nil
}

// Create makes a tent with userID as its first member. Invite code
// collisions are retried with a fresh code.
func (ts *TentService) Create(ctx context.Context, userID string, req CreateTentRequest) (*models.Tent, error) {
	name, description, err := validateDetails(req.Name, req.Description)
	if err != nil {
		return nil, err
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !models.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	tent := &models.Tent{Name: name, Description: description, CreatedBy: userID}
	for attempt := 0; ; attempt++ {
		tent.ID = ""
		tent.InviteCode = ts.newCode()
		err = ts.Store.CreateTent(ctx, tent, role)
		if !errors.Is(err, store.ErrConflict) || attempt+1 >= inviteCodeRetries {
			break
		}
		ts.Log.Warn("Invite code collision, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}

	ts.Log.Info("Tent created", "tent_id", tent.ID, "user_id", userID)
	return tent, nil
}

// Join adds userID to the tent behind code with the role opposite to the
// existing member. Joining a tent one already belongs to is a no-op; joined
// reports whether a membership was added.
func (ts *TentService) Join(ctx context.Context, userID, code string) (tent *models.Tent, joined bool, err error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, false, fmt.Errorf("invite code: %w", store.ErrNotFound)
	}
	found, err := ts.Store.GetTentByInviteCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	_, joined, err = ts.Store.JoinTent(ctx, found.ID, userID, func(members []models.TentMember) (string, error) {
		for _, m := range members {
			if m.UserID == userID {
				return "", nil
			}
		}
		if len(members) >= models.MaxTentMembers {
			return "", ErrTentFull
		}
		if len(members) == 0 {
			return models.RoleManager, nil
		}
		return models.OppositeRole(members[0].Role), nil
	})
	if err != nil {
		return nil, false, err
	}

	tent, err = ts.Store.GetTent(ctx, found.ID)
	if err != nil {
		return nil, false, err
	}
	if joined {
		ts.Log.Info("User joined tent", "tent_id", tent.ID, "user_id", userID)
		if other := tent.OtherMember(userID); other != nil {
			joiner := tent.Member(userID)
			ts.notify(ctx, models.Notification{
				UserID: other.UserID,
				TentID: tent.ID,
				Type:   models.NotifyMemberJoined,
				Title:  "New member joined " + tent.Name,
				Body:   fmt.Sprintf("%s joined as %s", displayName(joiner), joiner.Role),
			})
		}
	}
	return tent, joined, nil
}

// Get returns a tent with members, for members only.
func (ts *TentService) Get(ctx context.Context, userID, tentID string) (*models.Tent, error) {
	return LoadForMember(ctx, ts.Store, tentID, userID)
}

// Update changes name and description; creator only.
func (ts *TentService) Update(ctx context.Context, userID, tentID string, req UpdateTentRequest) (*models.Tent, error) {
	tent, err := ts.loadForCreator(ctx, userID, tentID)
	if err != nil {
		return nil, err
	}
	tent.Name, tent.Description, err = validateDetails(req.Name, req.Description)
	if err != nil {
		return nil, err
	}
	if err := ts.Store.UpdateTent(ctx, tent); err != nil {
		return nil, err
	}
	return tent, nil
}

// Delete removes a tent and everything in it; creator only.
func (ts *TentService) Delete(ctx context.Context, userID, tentID string) error {
	tent, err := ts.loadForCreator(ctx, userID, tentID)
	if err != nil {
		return err
	}
	if err := ts.Store.DeleteTent(ctx, tentID); err != nil {
		return err
	}
	ts.Log.Audit("Tent deleted", "tent_id", tentID, "user_id", userID)
	if other := tent.OtherMember(userID); other != nil {
		ts.notify(ctx, models.Notification{
			UserID: other.UserID,
			Type:   models.NotifyMemberLeft,
			Title:  tent.Name + " was deleted",
			Body:   "The tent creator deleted this tent.",
		})
	}
	return nil
}

// Leave removes userID from the tent; the last member leaving deletes it.
// A departing creator hands the tent to whoever remains.
func (ts *TentService) Leave(ctx context.Context, userID, tentID string) error {
	tent, err := LoadForMember(ctx, ts.Store, tentID, userID)
	if err != nil {
		return err
	}
	leaver := tent.Member(userID)
	remaining, err := ts.Store.RemoveMember(ctx, tentID, userID)
	if err != nil {
		return err
	}

	ts.Log.Info("User left tent", "tent_id", tentID, "user_id", userID, "remaining", remaining)
	if remaining > 0 && tent.CreatedBy == userID {
		ts.Log.Audit("Tent creator transferred", "tent_id", tentID, "from", userID)
	}
	if other := tent.OtherMember(userID); other != nil {
		ts.notify(ctx, models.Notification{
			UserID: other.UserID,
			TentID: tentID,
			Type:   models.NotifyMemberLeft,
			Title:  "Member left " + tent.Name,
			Body:   displayName(leaver) + " left the tent",
		})
	}
	return nil
}

// RegenerateCode issues a new invite code; creator only.
func (ts *TentService) RegenerateCode(ctx context.Context, userID, tentID string) (string, error) {
	if _, err := ts.loadForCreator(ctx, userID, tentID); err != nil {
		return "", err
	}
	var (
		code string
		err  error
	)
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		code = ts.newCode()
		err = ts.Store.UpdateInviteCode(ctx, tentID, code)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

func (ts *TentService) loadForCreator(ctx context.Context, userID, tentID string) (*models.Tent, error) {
	tent, err := LoadForMember(ctx, ts.Store, tentID, userID)
	if err != nil {
		return nil, err
	}
	if tent.CreatedBy != userID {
		return nil, ErrNotCreator
	}
	return tent, nil
}

func (ts *TentService) notify(ctx context.Context, n models.Notification) {
	if ts.Notifier == nil {
		return
	}
	if err := ts.Notifier.Notify(ctx, n); err != nil {
		ts.Log.Warn("Failed to notify tent member", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

func displayName(m *models.TentMember) string {
	if m == nil {
		return "A member"
	}
	u := models.User{Email: m.Email, FirstName: m.FirstName, LastName: m.LastName}
	if name := u.FullName(); name != "" {
		return name
	}
	return "A member"
}

// CreateTent handles POST /tent/create
func (ts *TentService) CreateTent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateTentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tent, err := ts.Create(r.Context(), userID, req)
	if err != nil {
		ts.respondErr(w, err, "Failed to create tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusCreated, tent)
}

// JoinTent handles POST /tent/join
func (ts *TentService) JoinTent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req JoinTentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tent, _, err := ts.Join(r.Context(), userID, req.InviteCode)
	if errors.Is(err, store.ErrNotFound) {
		httputil.RespondWithError(w, http.StatusNotFound, "Invalid invite code")
		return
	}
	if err != nil {
		ts.respondErr(w, err, "Failed to join tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, tent)
}

// GetUserTents handles GET /tent/all
func (ts *TentService) GetUserTents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	page, perPage, offset := httputil.Pagination(r)

	tents, total, err := ts.Store.ListUserTents(r.Context(), userID, perPage, offset)
	if err != nil {
		ts.respondErr(w, err, "Failed to fetch tents")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, httputil.Page{Items: tents, TotalCount: total, Page: page, PerPage: perPage})
}

// GetTent handles GET /tent/get/{id}
func (ts *TentService) GetTent(w http.ResponseWriter, r *http.Request) {
	tent, err := ts.Get(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		ts.respondErr(w, err, "Failed to fetch tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, tent)
}

// UpdateTent handles PUT /tent/update/{id}
func (ts *TentService) UpdateTent(w http.ResponseWriter, r *http.Request) {
	var req UpdateTentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tent, err := ts.Update(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		ts.respondErr(w, err, "Failed to update tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, tent)
}

// DeleteTent handles DELETE /tent/delete/{id}
func (ts *TentService) DeleteTent(w http.ResponseWriter, r *http.Request) {
	tentID := mux.Vars(r)["id"]
	if err := ts.Delete(r.Context(), middleware.GetUserID(r.Context()), tentID); err != nil {
		ts.respondErr(w, err, "Failed to delete tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": tentID, "status": "deleted"})
}

// LeaveTent handles POST /tent/leave/{id}
func (ts *TentService) LeaveTent(w http.ResponseWriter, r *http.Request) {
	tentID := mux.Vars(r)["id"]
	if err := ts.Leave(r.Context(), middleware.GetUserID(r.Context()), tentID); err != nil {
		ts.respondErr(w, err, "Failed to leave tent")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": tentID, "status": "left"})
}

// RegenerateInviteCode handles POST /tent/regenerate-code/{id}
func (ts *TentService) RegenerateInviteCode(w http.ResponseWriter, r *http.Request) {
	tentID := mux.Vars(r)["id"]
	code, err := ts.RegenerateCode(r.Context(), middleware.GetUserID(r.Context()), tentID)
	if err != nil {
		ts.respondErr(w, err, "Failed to regenerate invite code")
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, map[string]string{"id": tentID, "invite_code": code})
}

func (ts *TentService) respondErr(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "Tent not found")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotCreator):
		httputil.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrTentFull), errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidDesc):
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		ts.Log.Error(fallback, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
