package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/PriceTracker/internal/backend"
	"github.com/utafrali/PriceTracker/internal/domain"
	"github.com/utafrali/PriceTracker/internal/view/authscreen"
	apperrors "github.com/utafrali/PriceTracker/pkg/errors"
	"github.com/utafrali/PriceTracker/pkg/httputil"
	"github.com/utafrali/PriceTracker/pkg/middleware"
	"github.com/utafrali/PriceTracker/pkg/validator"
)

// AuthService is the auth side of the data client plus token validation.
type AuthService interface {
	backend.AuthClient
	ValidateToken(ctx context.Context, token string) (*middleware.Claims, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service    AuthService
	dashboards Dashboards
	appearance authscreen.Appearance
	logger     *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, dashboards Dashboards, appearance authscreen.Appearance, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, dashboards: dashboards, appearance: appearance, logger: logger}
}

// CredentialsRequest is the JSON request body for sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Appearance handles GET /api/v1/auth/appearance
func (h *AuthHandler) Appearance(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.appearance)
}

// SignUp handles POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusCreated, h.service.SignUp)
}

// SignIn handles POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusOK, h.service.SignIn)
}

func (h *AuthHandler) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	fn func(context.Context, backend.Credentials) (*domain.Session, error),
) {
	var req CredentialsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := fn(r.Context(), backend.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, status, session)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if user == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("session is no longer valid"), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// SignOut handles POST /api/v1/auth/signout. The user's dashboard is
// unmounted once the token is revoked.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.SignOut(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.dashboards.Remove(userID)
	w.WriteHeader(http.StatusNoContent)
}
