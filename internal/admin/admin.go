package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ecoagris/portal/internal/auth"
	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/ecoagris/portal/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UserManager is the account administration surface of the identity provider.
type UserManager interface {
	SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error
	RevokeRefreshTokens(ctx context.Context, uid uuid.UUID) error
}

// Handler serves the admin user-management API. Every route must sit
// behind the API session middleware.
type Handler struct {
	users   store.UserStore
	manager UserManager
	metrics *telemetry.Metrics
}

// New creates an admin Handler.
func New(users store.UserStore, manager UserManager) (*Handler, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if manager == nil {
		return nil, errors.New("user manager is required")
	}

	return &Handler{
		users:   users,
		manager: manager,
		metrics: telemetry.GetMetrics(),
	}, nil
}

// User is an account as shown to admins. The password hash is never exposed.
type User struct {
	UID              string     `json:"uid"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"displayName"`
	Disabled         bool       `json:"disabled"`
	TokensValidAfter *time.Time `json:"tokensValidAfter,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
}

func newUser(u *models.User) User {
	out := User{
		UID:         u.UID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Disabled:    u.Disabled,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
	if !u.TokensValidAfter.IsZero() {
		t := u.TokensValidAfter
		out.TokensValidAfter = &t
	}
	return out
}

// Routes mounts the user-management endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Post("/users/{uid}/disable", h.action("disable", func(ctx context.Context, uid uuid.UUID) error {
		return h.manager.SetDisabled(ctx, uid, true)
	}))
	r.Post("/users/{uid}/enable", h.action("enable", func(ctx context.Context, uid uuid.UUID) error {
		return h.manager.SetDisabled(ctx, uid, false)
	}))
	r.Post("/users/{uid}/revoke", h.action("revoke", h.manager.RevokeRefreshTokens))
}

// ListUsers returns every account at GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		writeError(w, auth.KindInternal, "failed to list users")
		return
	}

	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, newUser(u))
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

// writeError answers with the same {"error","code"} body as the auth layer.
func writeError(w http.ResponseWriter, kind auth.Kind, msg string) {
	httpmiddleware.WriteJSON(w, kind.Status(), auth.ErrorResponse{Error: msg, Code: kind})
}

func (h *Handler) action(name string, fn func(ctx context.Context, uid uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		uid, err := uuid.Parse(chi.URLParam(r, "uid"))
		if err != nil {
			writeError(w, auth.KindMalformedRequest, "invalid uid")
			return
		}

		if err := fn(ctx, uid); err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				writeError(w, auth.KindNotFound, "user not found")
				return
			}
			log.Error().Err(err).Str("uid", uid.String()).Str("action", name).Msg("Admin action failed")
			writeError(w, auth.KindInternal, "action failed")
			return
		}

		h.metrics.RecordAdminAction(ctx, name)

		actor := ""
		if principal := auth.PrincipalFromContext(ctx); principal != nil {
			actor = principal.Email
		}
		log.Info().Str("uid", uid.String()).Str("action", name).Str("actor", actor).Msg("Admin action")

		user, err := h.users.Get(ctx, uid)
		if err != nil {
			log.Error().Err(err).Str("uid", uid.String()).Msg("Failed to reload user")
			httpmiddleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}

		httpmiddleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": newUser(user)})
	}
}
